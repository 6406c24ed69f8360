package services

import (
	"testing"

	"github.com/examforge/papergen-service/internal/models"
)

func paperWith(ids ...string) models.PaperBody {
	qs := make([]models.PaperQuestion, len(ids))
	for i, id := range ids {
		qs[i] = models.PaperQuestion{ID: id, Marks: 10}
	}
	return models.PaperBody{Sections: []models.PaperSection{{Title: "A", Questions: qs}}}
}

func TestExtractAnchorStyles(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"q prefix", "Q1. Paris is the capital.\nQ2) The answer is 42."},
		{"question word", "Question 1: Paris is the capital.\nQuestion 2 The answer is 42."},
		{"bare numbers", "1. Paris is the capital.\n2. The answer is 42."},
		{"answer word", "Answer 1 - Paris is the capital.\nAns 2: The answer is 42."},
	}

	ex := NewAnswerExtractor()
	body := paperWith("q1", "q2")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ex.Extract(body, tt.text)
			if got["q1"] != "Paris is the capital." {
				t.Errorf("q1 = %q", got["q1"])
			}
			if got["q2"] != "The answer is 42." {
				t.Errorf("q2 = %q", got["q2"])
			}
		})
	}
}

func TestExtractMultilineSpan(t *testing.T) {
	text := "Q1.\nFirst line of the answer.\nSecond line too.\n\nQ2. Short."
	got := NewAnswerExtractor().Extract(paperWith("q1", "q2"), text)

	want := "First line of the answer.\nSecond line too."
	if got["q1"] != want {
		t.Errorf("q1 = %q, want %q", got["q1"], want)
	}
	if got["q2"] != "Short." {
		t.Errorf("q2 = %q", got["q2"])
	}
}

func TestExtractMissingAnswers(t *testing.T) {
	text := "Q1. Only the first one answered."
	got := NewAnswerExtractor().Extract(paperWith("q1", "q2", "q3"), text)

	if got["q1"] == models.NoAnswerFound {
		t.Error("q1 should have been found")
	}
	if got["q2"] != models.NoAnswerFound || got["q3"] != models.NoAnswerFound {
		t.Errorf("unanswered questions = %q, %q", got["q2"], got["q3"])
	}
}

func TestExtractEmptyTextCoversAllQuestions(t *testing.T) {
	got := NewAnswerExtractor().Extract(paperWith("q1", "q2"), "")
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	for id, ans := range got {
		if ans != models.NoAnswerFound {
			t.Errorf("%s = %q", id, ans)
		}
	}
}

func TestExtractFirstAnchorWins(t *testing.T) {
	// The duplicate label later in the document must not overwrite the first.
	text := "Q1. Real answer.\nQ2. Mentions that Q1. again inside.\n"
	got := NewAnswerExtractor().Extract(paperWith("q1", "q2"), text)
	if got["q1"] != "Real answer." {
		t.Errorf("q1 = %q", got["q1"])
	}
}

func TestExtractOutOfOrderAnswers(t *testing.T) {
	text := "Q3. Third first.\nQ1. Then the first."
	got := NewAnswerExtractor().Extract(paperWith("q1", "q2", "q3"), text)
	if got["q3"] != "Third first." {
		t.Errorf("q3 = %q", got["q3"])
	}
	if got["q1"] != "Then the first." {
		t.Errorf("q1 = %q", got["q1"])
	}
	if got["q2"] != models.NoAnswerFound {
		t.Errorf("q2 = %q", got["q2"])
	}
}
