package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID       uint    `json:"id" gorm:"primaryKey"`
	Code     string  `json:"code" gorm:"not null;size:50;uniqueIndex" validate:"required,min=2,max=50"`
	Title    string  `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Language string  `json:"language" gorm:"size:50;default:English"`

	// Grading policy applied when grading submissions for this course
	GradingScale  datatypes.JSON `json:"grading_scale" gorm:"type:jsonb"` // letter -> min percentage
	PassThreshold int            `json:"pass_threshold" gorm:"default:40" validate:"min=0,max=100"`
	PartialCredit bool           `json:"partial_credit" gorm:"default:true"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Materials []CourseMaterial `json:"materials,omitempty" gorm:"foreignKey:CourseID"`
}

func (Course) TableName() string {
	return "courses"
}
