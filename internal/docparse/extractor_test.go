package docparse

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("Failed to create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("Failed to write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractRejectsUnknownExtension(t *testing.T) {
	_, err := Extract("submission.xlsx", []byte("data"))
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Errorf("Expected ErrUnsupportedFile, got %v", err)
	}
}

func TestExtractEmptyFile(t *testing.T) {
	_, err := Extract("submission.pdf", nil)
	if !errors.Is(err, ErrNoExtractableText) {
		t.Errorf("Expected ErrNoExtractableText for empty file, got %v", err)
	}
}

func TestExtractPlainText(t *testing.T) {
	input := "Q1: The first law of thermodynamics.\r\n\r\n\r\nQ2:   Entropy always    increases.\r\n"
	got, err := Extract("answers.txt", []byte(input))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := "Q1: The first law of thermodynamics.\n\nQ2: Entropy always increases."
	if got != want {
		t.Errorf("Normalization mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestExtractPlainTextRejectsBinary(t *testing.T) {
	_, err := Extract("answers.txt", []byte("abc\x00def and some more padding text"))
	if !errors.Is(err, ErrNoExtractableText) {
		t.Errorf("Expected ErrNoExtractableText for binary content, got %v", err)
	}
}

func TestExtractPlainTextTooShort(t *testing.T) {
	_, err := Extract("answers.txt", []byte("hi"))
	if !errors.Is(err, ErrNoExtractableText) {
		t.Errorf("Expected ErrNoExtractableText for tiny content, got %v", err)
	}
}

func TestExtractDOCX(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Question 1: define enthalpy.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Answer: </w:t></w:r><w:r><w:t>heat content at constant pressure.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	got, err := Extract("submission.docx", buildDOCX(t, doc))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 paragraphs, got %d: %q", len(lines), got)
	}
	if lines[0] != "Question 1: define enthalpy." {
		t.Errorf("Unexpected first paragraph: %q", lines[0])
	}
	if lines[1] != "Answer: heat content at constant pressure." {
		t.Errorf("Runs within a paragraph should join without a break: %q", lines[1])
	}
}

func TestExtractDOCXMissingBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/styles.xml")
	w.Write([]byte("<styles/>"))
	zw.Close()

	_, err := Extract("submission.docx", buf.Bytes())
	if err == nil || !strings.Contains(err.Error(), "word/document.xml") {
		t.Errorf("Expected missing document.xml error, got %v", err)
	}
}

func TestExtractDOCXNotAZip(t *testing.T) {
	_, err := Extract("submission.docx", []byte("this is definitely not a zip archive"))
	if err == nil {
		t.Error("Expected error for non-zip docx")
	}
}

func TestSanitizePDFTruncatesTrailingGarbage(t *testing.T) {
	body := []byte("%PDF-1.4\nsome objects\n%%EOF\n")
	dirty := append(append([]byte{}, body...), []byte("<html>saved error page</html>")...)

	got := sanitizePDF(dirty)
	if !bytes.Equal(got, body) {
		t.Errorf("Expected garbage truncated at %%%%EOF, got %q", got)
	}
}

func TestSanitizePDFKeepsCleanContent(t *testing.T) {
	body := []byte("%PDF-1.4\nsome objects\n%%EOF\n")
	if got := sanitizePDF(body); !bytes.Equal(got, body) {
		t.Errorf("Clean PDF should pass through unchanged")
	}

	notPDF := []byte("plain text, no header")
	if got := sanitizePDF(notPDF); !bytes.Equal(got, notPDF) {
		t.Errorf("Non-PDF content should pass through unchanged")
	}
}

func TestSupportedExtension(t *testing.T) {
	cases := map[string]bool{
		"a.pdf":  true,
		"a.PDF":  true,
		"a.docx": true,
		"a.txt":  true,
		"a.doc":  false,
		"a.png":  false,
		"a":      false,
	}
	for name, want := range cases {
		if got := SupportedExtension(name); got != want {
			t.Errorf("SupportedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}
