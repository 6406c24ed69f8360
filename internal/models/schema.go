package models

// Structured shapes stored in the jsonb columns of PaperVariant,
// PaperSubmission and GradingResult. The generative model is required to
// return these shapes; parsing and validation live in the services layer.

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Citation marks where a question was grounded. Either ExcerptID references
// a retrieved excerpt, or Synthesized is true for model-authored content.
type Citation struct {
	ExcerptID   string `json:"excerpt_id,omitempty"`
	Synthesized bool   `json:"synthesized,omitempty"`
}

type PaperQuestion struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"` // mcq, short_answer, essay, numerical
	Text       string     `json:"text"`
	Marks      int        `json:"marks"`
	Difficulty Difficulty `json:"difficulty"`
	Tags       []string   `json:"tags"`
	Citations  []Citation `json:"citations"`
}

type PaperSection struct {
	Title     string          `json:"title"`
	Questions []PaperQuestion `json:"questions"`
}

type PaperBody struct {
	Title      string         `json:"title"`
	ExamType   string         `json:"exam_type"`
	TotalMarks int            `json:"total_marks"`
	Duration   int            `json:"duration"`
	Sections   []PaperSection `json:"sections"`
}

// Questions walks every section in order.
func (b PaperBody) Questions() []PaperQuestion {
	var out []PaperQuestion
	for _, s := range b.Sections {
		out = append(out, s.Questions...)
	}
	return out
}

// SchemeEntry is the marking scheme for one question.
type SchemeEntry struct {
	AnswerKey string `json:"answer_key"`
	Rubric    string `json:"rubric,omitempty"`
	MaxMarks  int    `json:"max_marks"`
}

// MarkingScheme maps question id -> scheme entry.
type MarkingScheme map[string]SchemeEntry

// ExtractedAnswers maps question id -> answer text pulled from a submission.
type ExtractedAnswers map[string]string

// NoAnswerFound is recorded for questions with no matching answer span so
// grading always sees complete rubric coverage.
const NoAnswerFound = "No answer found"

// BreakdownEntry is the graded outcome for one question.
type BreakdownEntry struct {
	Marks    float64 `json:"marks"`
	MaxMarks int     `json:"max_marks"`
	Comment  string  `json:"comment,omitempty"`
}

// GradingBreakdown maps question id -> graded outcome.
type GradingBreakdown map[string]BreakdownEntry
