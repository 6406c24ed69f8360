package models

import "time"

// UnlimitedPapers is the sentinel limit meaning "no monthly cap".
const UnlimitedPapers = -1

type Plan struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;size:50;uniqueIndex" validate:"required,min=1,max=50"`

	MaxPapersPerMonth int   `json:"max_papers_per_month" gorm:"not null;default:5"` // UnlimitedPapers = no cap
	MaxVariants       int   `json:"max_variants" gorm:"not null;default:1" validate:"min=1,max=10"`
	MaxUploadBytes    int64 `json:"max_upload_bytes" gorm:"not null;default:10485760"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}
