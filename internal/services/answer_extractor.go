package services

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/examforge/papergen-service/internal/models"
)

// answerAnchor matches the common ways students label answers at the start of
// a line: "Q1", "Q1.", "Question 1:", "1.", "1)", "Ans 3", "Answer 3 -".
var answerAnchor = regexp.MustCompile(`(?mi)^[ \t]*(?:q(?:uestion)?|ans(?:wer)?)?[ \t]*(\d{1,3})[ \t]*[\.\):\-]?[ \t]*`)

// questionNumber pulls the numeric part out of a question id like "q12".
var questionNumber = regexp.MustCompile(`(\d+)`)

type regexAnswerExtractor struct{}

func NewAnswerExtractor() AnswerExtractor {
	return &regexAnswerExtractor{}
}

// Extract maps raw submission text onto the paper's question ids. Every
// question gets an entry; questions with no matching span are recorded as
// NoAnswerFound so grading always sees full coverage.
func (e *regexAnswerExtractor) Extract(body models.PaperBody, rawText string) models.ExtractedAnswers {
	questions := body.Questions()
	out := make(models.ExtractedAnswers, len(questions))

	spans := extractSpans(rawText)

	for _, q := range questions {
		num, ok := numberOf(q.ID)
		if !ok {
			out[q.ID] = models.NoAnswerFound
			continue
		}
		answer, found := spans[num]
		if !found || strings.TrimSpace(answer) == "" {
			out[q.ID] = models.NoAnswerFound
			continue
		}
		out[q.ID] = strings.TrimSpace(answer)
	}

	return out
}

// extractSpans slices the text at each anchor; a span runs from the end of
// its anchor to the start of the next one. The first anchor for a number
// wins, so a "1." inside answer text cannot overwrite question 1.
func extractSpans(text string) map[int]string {
	matches := answerAnchor.FindAllStringSubmatchIndex(text, -1)
	spans := make(map[int]string, len(matches))

	for i, m := range matches {
		num, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		if _, exists := spans[num]; exists {
			continue
		}

		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		spans[num] = text[start:end]
	}

	return spans
}

func numberOf(questionID string) (int, bool) {
	m := questionNumber.FindString(questionID)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
