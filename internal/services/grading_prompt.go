package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/examforge/papergen-service/internal/models"
)

// gradingTemperature is zero: the same submission against the same scheme
// must always score the same.
const gradingTemperature = 0.0

const gradingSystemPrompt = `You are a strict but fair university examiner marking a student's answers against a marking scheme.
Respond with exactly one JSON object and nothing else:
{
  "breakdown": {
    "<question id>": {
      "marks": number,   // awarded marks, 0 <= marks <= max marks
      "comment": string  // one or two sentences justifying the award
    }
  },
  "feedback": string     // overall feedback for the student
}

Rules:
- Grade every question listed in the marking scheme, including unanswered ones (award 0).
- Never award more than the question's max marks, never award negative marks.
- "No answer found" means the student did not answer; award 0 and say so.
- Follow the answer key and rubric; do not invent your own criteria.`

const noPartialCreditRule = `- Partial credit is disabled: award either full marks or zero for each question.`

// buildGradingPrompt lays out scheme, question text and extracted answers per
// question so the model grades them side by side.
func buildGradingPrompt(course *models.Course, body models.PaperBody, scheme models.MarkingScheme, answers models.ExtractedAnswers) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Course: %s (%s)\n", course.Title, course.Code)
	fmt.Fprintf(&b, "Language: %s\n", course.Language)
	fmt.Fprintf(&b, "Paper: %s\n", body.Title)

	for _, q := range body.Questions() {
		entry := scheme[q.ID]
		fmt.Fprintf(&b, "\n--- Question %s (%d marks) ---\n", q.ID, q.Marks)
		fmt.Fprintf(&b, "Question: %s\n", q.Text)
		fmt.Fprintf(&b, "Answer key: %s\n", entry.AnswerKey)
		if entry.Rubric != "" {
			fmt.Fprintf(&b, "Rubric: %s\n", entry.Rubric)
		}
		fmt.Fprintf(&b, "Student answer: %s\n", answers[q.ID])
	}

	return b.String()
}

func gradingSystem(course *models.Course) string {
	if course.PartialCredit {
		return gradingSystemPrompt
	}
	return gradingSystemPrompt + "\n" + noPartialCreditRule
}

type gradedResponse struct {
	Breakdown map[string]struct {
		Marks   float64 `json:"marks"`
		Comment string  `json:"comment"`
	} `json:"breakdown"`
	Feedback string `json:"feedback"`
	Error    string `json:"error"`
}

// parseGradedResponse validates the model's breakdown covers every question
// within its mark bounds and computes the totals.
func parseGradedResponse(raw json.RawMessage, body models.PaperBody, scheme models.MarkingScheme, partialCredit bool) (models.GradingBreakdown, string, float64, float64, error) {
	var gr gradedResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, "", 0, 0, NewModelRejectedError(fmt.Sprintf("grading response is not the expected shape: %v", err))
	}
	if gr.Error != "" {
		return nil, "", 0, 0, NewModelRejectedError(gr.Error)
	}

	breakdown := make(models.GradingBreakdown, len(scheme))
	total := 0.0
	max := 0.0

	for _, q := range body.Questions() {
		entry, ok := gr.Breakdown[q.ID]
		if !ok {
			return nil, "", 0, 0, NewModelRejectedError(fmt.Sprintf("grading breakdown missing question %s", q.ID))
		}

		maxMarks := scheme[q.ID].MaxMarks
		if entry.Marks < 0 || entry.Marks > float64(maxMarks) {
			return nil, "", 0, 0, NewModelRejectedError(fmt.Sprintf("question %s awarded %.2f marks, bounds are 0 to %d", q.ID, entry.Marks, maxMarks))
		}
		if !partialCredit && entry.Marks != 0 && entry.Marks != float64(maxMarks) {
			return nil, "", 0, 0, NewModelRejectedError(fmt.Sprintf("question %s awarded partial marks with partial credit disabled", q.ID))
		}

		breakdown[q.ID] = models.BreakdownEntry{
			Marks:    entry.Marks,
			MaxMarks: maxMarks,
			Comment:  entry.Comment,
		}
		total += entry.Marks
		max += float64(maxMarks)
	}

	return breakdown, gr.Feedback, total, max, nil
}

// defaultGradingScale applies when a course carries no explicit scale.
var defaultGradingScale = map[string]int{
	"A": 80,
	"B": 70,
	"C": 60,
	"D": 50,
	"F": 0,
}

// letterGrade maps a percentage onto the course scale: the letter with the
// highest minimum the percentage still clears.
func letterGrade(course *models.Course, percentage float64) string {
	scale := defaultGradingScale
	if len(course.GradingScale) > 0 {
		parsed := map[string]int{}
		if err := json.Unmarshal(course.GradingScale, &parsed); err == nil && len(parsed) > 0 {
			scale = parsed
		}
	}

	type band struct {
		letter string
		min    int
	}
	bands := make([]band, 0, len(scale))
	for letter, min := range scale {
		bands = append(bands, band{letter, min})
	}
	sort.Slice(bands, func(i, j int) bool {
		if bands[i].min != bands[j].min {
			return bands[i].min > bands[j].min
		}
		return bands[i].letter < bands[j].letter
	})

	for _, b := range bands {
		if percentage >= float64(b.min) {
			return b.letter
		}
	}
	// Below every band floor
	return bands[len(bands)-1].letter
}
