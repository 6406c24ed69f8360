package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/examforge/papergen-service/internal/models"
)

// Generation defaults applied when the request leaves them unset.
var defaultDifficultyMix = map[string]int{
	string(models.DifficultyEasy):   40,
	string(models.DifficultyMedium): 40,
	string(models.DifficultyHard):   20,
}

const (
	// generationTemperature is kept low so a fixed seed reproduces papers.
	generationTemperature = 0.2

	// minOriginalityPercent is the share of total marks that must come from
	// newly authored questions rather than reworded old-paper ones.
	minOriginalityPercent = 80
)

const paperSystemPrompt = `You are an experienced university examiner producing exam papers from course materials.
Respond with exactly one JSON object and nothing else.

On success the object has this shape:
{
  "title": string,
  "sections": [
    {
      "title": string,
      "questions": [
        {
          "id": string,            // "q1", "q2", ... unique across the paper
          "type": string,          // one of: mcq, short_answer, essay, numerical
          "text": string,
          "marks": int,
          "difficulty": string,    // one of: easy, medium, hard
          "tags": [string],        // topics the question covers
          "citations": [
            {"excerpt_id": string} // id of a supplied excerpt, or
            // {"synthesized": true} when no excerpt grounds the question
          ]
        }
      ]
    }
  ],
  "marking_scheme": {
    "<question id>": {
      "answer_key": string,
      "rubric": string,
      "max_marks": int            // must equal the question's marks
    }
  }
}

If the request cannot be satisfied from the supplied materials, respond with:
{"error": "<short reason>"}

Rules:
- Question marks must sum exactly to the requested total.
- Marks per difficulty level must follow the requested percentage mix as closely as integer marks allow.
- Every question needs at least one citation.
- At least the requested percentage of marks must be carried by original questions, not questions copied from old papers.
- Do not use topics listed as excluded.`

// promptInput is everything one variant's generation prompt needs.
type promptInput struct {
	Course        *models.Course
	Request       *GeneratePaperRequest
	Excerpts      []Excerpt
	DifficultyMix map[string]int
	VariantNumber int
}

func buildPaperPrompt(in promptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Course: %s (%s)\n", in.Course.Title, in.Course.Code)
	fmt.Fprintf(&b, "Language: %s\n", in.Course.Language)
	fmt.Fprintf(&b, "Exam type: %s\n", strings.ToUpper(in.Request.ExamType))
	fmt.Fprintf(&b, "Total marks: %d\n", in.Request.TotalMarks)
	fmt.Fprintf(&b, "Duration: %d minutes\n", in.Request.Duration)
	fmt.Fprintf(&b, "Variant: %d\n", in.VariantNumber)
	fmt.Fprintf(&b, "Minimum original content: %d%% of marks\n", minOriginalityPercent)

	// Stable key order keeps the prompt byte-identical across runs.
	keys := make([]string, 0, len(in.DifficultyMix))
	for k := range in.DifficultyMix {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("Difficulty mix by marks:")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%d%%", k, in.DifficultyMix[k])
	}
	b.WriteString("\n")

	if len(in.Request.TopicsInclude) > 0 {
		fmt.Fprintf(&b, "Focus topics: %s\n", strings.Join(in.Request.TopicsInclude, ", "))
	}
	if len(in.Request.TopicsExclude) > 0 {
		fmt.Fprintf(&b, "Excluded topics: %s\n", strings.Join(in.Request.TopicsExclude, ", "))
	}
	if in.Request.StyleOverride != nil && *in.Request.StyleOverride != "" {
		fmt.Fprintf(&b, "Style instructions: %s\n", *in.Request.StyleOverride)
	}

	b.WriteString("\nCourse material excerpts (cite by id):\n")
	for _, ex := range in.Excerpts {
		fmt.Fprintf(&b, "\n[%s] %s (%s", ex.ID, ex.Title, ex.MaterialType)
		if ex.Year != nil {
			fmt.Fprintf(&b, ", %d", *ex.Year)
		}
		b.WriteString(")\n")
		if ex.StyleNotes != "" {
			fmt.Fprintf(&b, "Style notes: %s\n", ex.StyleNotes)
		}
		if len(ex.Weightings) > 0 {
			wk := make([]string, 0, len(ex.Weightings))
			for t := range ex.Weightings {
				wk = append(wk, t)
			}
			sort.Strings(wk)
			b.WriteString("Topic weightings:")
			for _, t := range wk {
				fmt.Fprintf(&b, " %s=%d", t, ex.Weightings[t])
			}
			b.WriteString("\n")
		}
		b.WriteString(ex.Text)
		b.WriteString("\n")
	}

	return b.String()
}

// generatedPaper is the model's raw response shape before validation.
type generatedPaper struct {
	Title         string                `json:"title"`
	Sections      []models.PaperSection `json:"sections"`
	MarkingScheme models.MarkingScheme  `json:"marking_scheme"`
	Error         string                `json:"error"`
}

// parseGeneratedPaper decodes and validates one model response into a paper
// body and marking scheme. A non-empty "error" field means the model refused,
// which surfaces as model_rejected rather than a retryable upstream failure.
func parseGeneratedPaper(raw json.RawMessage, req *GeneratePaperRequest, excerptIDs map[string]bool) (*models.PaperBody, models.MarkingScheme, error) {
	var gp generatedPaper
	if err := json.Unmarshal(raw, &gp); err != nil {
		return nil, nil, NewModelRejectedError(fmt.Sprintf("model response is not the expected shape: %v", err))
	}
	if gp.Error != "" {
		return nil, nil, NewModelRejectedError(gp.Error)
	}
	if len(gp.Sections) == 0 {
		return nil, nil, NewModelRejectedError("model returned no sections")
	}

	body := &models.PaperBody{
		Title:      gp.Title,
		ExamType:   strings.ToUpper(req.ExamType),
		TotalMarks: req.TotalMarks,
		Duration:   req.Duration,
		Sections:   gp.Sections,
	}

	if err := validateGeneratedPaper(body, gp.MarkingScheme, excerptIDs); err != nil {
		return nil, nil, err
	}

	return body, gp.MarkingScheme, nil
}

func validateGeneratedPaper(body *models.PaperBody, scheme models.MarkingScheme, excerptIDs map[string]bool) error {
	questions := body.Questions()
	if len(questions) == 0 {
		return NewModelRejectedError("paper contains no questions")
	}

	seen := make(map[string]bool, len(questions))
	sum := 0
	for _, q := range questions {
		if q.ID == "" {
			return NewModelRejectedError("question without an id")
		}
		if seen[q.ID] {
			return NewModelRejectedError(fmt.Sprintf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = true

		if q.Marks <= 0 {
			return NewModelRejectedError(fmt.Sprintf("question %s has non-positive marks", q.ID))
		}
		sum += q.Marks

		switch q.Difficulty {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
		default:
			return NewModelRejectedError(fmt.Sprintf("question %s has unknown difficulty %q", q.ID, q.Difficulty))
		}

		if len(q.Citations) == 0 {
			return NewModelRejectedError(fmt.Sprintf("question %s has no citations", q.ID))
		}
		for _, c := range q.Citations {
			if c.Synthesized {
				continue
			}
			if c.ExcerptID == "" || !excerptIDs[c.ExcerptID] {
				return NewModelRejectedError(fmt.Sprintf("question %s cites unknown excerpt %q", q.ID, c.ExcerptID))
			}
		}

		entry, ok := scheme[q.ID]
		if !ok {
			return NewModelRejectedError(fmt.Sprintf("marking scheme missing question %s", q.ID))
		}
		if entry.MaxMarks != q.Marks {
			return NewModelRejectedError(fmt.Sprintf("marking scheme max marks for %s is %d, question carries %d", q.ID, entry.MaxMarks, q.Marks))
		}
		if strings.TrimSpace(entry.AnswerKey) == "" {
			return NewModelRejectedError(fmt.Sprintf("marking scheme for %s has no answer key", q.ID))
		}
	}

	if sum != body.TotalMarks {
		return NewModelRejectedError(fmt.Sprintf("question marks sum to %d, requested %d", sum, body.TotalMarks))
	}

	// Scheme entries for questions that do not exist hide grading surprises.
	for id := range scheme {
		if !seen[id] {
			return NewModelRejectedError(fmt.Sprintf("marking scheme references unknown question %q", id))
		}
	}

	return nil
}
