package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/examforge/papergen-service/internal/models"
)

// Exam types the generator understands
var examTypes = []string{"MIDTERM", "FINAL", "QUIZ", "PRACTICE"}

// Validator handles struct and business rule validation
type Validator struct {
	validate *validator.Validate
}

// New creates the validator used across services and handlers
func New() *Validator {
	validate := validator.New()

	bv := &Validator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates struct tags for any request
func (bv *Validator) Validate(s interface{}) ValidationErrors {
	if err := bv.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateMaterialCreate validates material upload business rules
func (bv *Validator) ValidateMaterialCreate(req *MaterialCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, validateWeightings(req.Weightings)...)

	if req.Type == models.MaterialOldPaper && req.Year == nil {
		errors = append(errors, ValidationError{
			Field:   "year",
			Message: "is required for old papers",
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidatePaperGenerate validates generation request business rules
func (bv *Validator) ValidatePaperGenerate(req *PaperGenerateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, validateDifficultyMix(req.DifficultyMix)...)

	// A topic cannot be both included and excluded
	excluded := make(map[string]bool, len(req.TopicsExclude))
	for _, t := range req.TopicsExclude {
		excluded[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, t := range req.TopicsInclude {
		if excluded[strings.ToLower(strings.TrimSpace(t))] {
			errors = append(errors, ValidationError{
				Field:   "topics_include",
				Message: fmt.Sprintf("topic %q is both included and excluded", t),
				Value:   t,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

// ValidateGradeSubmission validates submission business rules
func (bv *Validator) ValidateGradeSubmission(req *GradeSubmissionRequest) ValidationErrors {
	return bv.Validate(req)
}

func validateDifficultyMix(mix map[string]int) ValidationErrors {
	if len(mix) == 0 {
		return nil
	}

	var errors ValidationErrors
	sum := 0
	for key, pct := range mix {
		switch models.Difficulty(strings.ToLower(key)) {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
		default:
			errors = append(errors, ValidationError{
				Field:   "difficulty_mix",
				Message: fmt.Sprintf("unknown difficulty %q", key),
				Value:   key,
				Rule:    "business_logic",
			})
		}
		if pct < 0 || pct > 100 {
			errors = append(errors, ValidationError{
				Field:   "difficulty_mix",
				Message: fmt.Sprintf("percentage for %q out of range", key),
				Value:   pct,
				Rule:    "business_logic",
			})
		}
		sum += pct
	}

	if sum != 100 {
		errors = append(errors, ValidationError{
			Field:   "difficulty_mix",
			Message: fmt.Sprintf("percentages must sum to 100, got %d", sum),
			Value:   sum,
			Rule:    "business_logic",
		})
	}

	return errors
}

func validateWeightings(weightings map[string]int) ValidationErrors {
	var errors ValidationErrors
	for topic, weight := range weightings {
		if strings.TrimSpace(topic) == "" {
			errors = append(errors, ValidationError{
				Field:   "weightings",
				Message: "topic cannot be empty",
				Rule:    "business_logic",
			})
		}
		if weight < 0 || weight > 100 {
			errors = append(errors, ValidationError{
				Field:   "weightings",
				Message: fmt.Sprintf("weight for %q out of range", topic),
				Value:   weight,
				Rule:    "business_logic",
			})
		}
	}
	return errors
}

// registerBusinessRules registers custom rule validators
func (bv *Validator) registerBusinessRules() {
	// Material type validation
	bv.validate.RegisterValidation("material_type", func(fl validator.FieldLevel) bool {
		t := models.MaterialType(fl.Field().String())
		return t == models.MaterialSyllabus || t == models.MaterialOldPaper || t == models.MaterialReference
	})

	// Exam type validation
	bv.validate.RegisterValidation("exam_type", func(fl validator.FieldLevel) bool {
		v := strings.ToUpper(fl.Field().String())
		for _, t := range examTypes {
			if v == t {
				return true
			}
		}
		return false
	})

	// Total marks validation (10-300)
	bv.validate.RegisterValidation("total_marks", func(fl validator.FieldLevel) bool {
		marks := fl.Field().Int()
		return marks >= 10 && marks <= 300
	})

	// Paper duration validation (15-300 minutes)
	bv.validate.RegisterValidation("paper_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 15 && duration <= 300
	})
}
