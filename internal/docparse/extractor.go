package docparse

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedFile means the filename extension is not one of the
	// accepted upload formats.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrNoExtractableText means the document parsed but yielded no usable
	// text, e.g. a scanned image-only PDF.
	ErrNoExtractableText = errors.New("no extractable text")
)

// minExtractedChars guards against image-only PDFs that parse fine but carry
// almost no text layer.
const minExtractedChars = 20

// Extract pulls plain text out of an uploaded document, dispatching on the
// filename extension. Supported: .pdf, .docx, .txt.
func Extract(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file %s", ErrNoExtractableText, filename)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".txt":
		return extractPlain(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
}

// SupportedExtension reports whether a filename can be extracted at all,
// letting handlers reject uploads before reading the body.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx", ".txt":
		return true
	}
	return false
}

// sanitizePDF truncates trailing garbage after the last %%EOF marker. PDFs
// fetched from the web frequently carry appended HTML that breaks the
// xref-based parser.
func sanitizePDF(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	end := lastEOF + len(eofMarker)
	for end < len(content) && (content[end] == '\n' || content[end] == '\r') {
		end++
	}
	if len(content)-end > 10 {
		return content[:end]
	}
	return content
}

func extractPDF(data []byte) (string, error) {
	data = sanitizePDF(data)

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("%w: pdf has no pages", ErrNoExtractableText)
	}

	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			// Row extraction fails on some encodings; plain text still works.
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				continue
			}
			b.WriteString(text)
			b.WriteString("\n")
			continue
		}

		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				b.WriteString(s)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	return finish(b.String())
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx container: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx missing word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read docx body: %w", err)
	}

	return finish(wordprocessingText(raw))
}

// wordprocessingText walks document.xml collecting w:t runs, inserting line
// breaks at paragraph boundaries so answer anchors survive extraction.
func wordprocessingText(raw []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				var v string
				if err := dec.DecodeElement(&v, &el); err == nil {
					b.WriteString(v)
				}
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func extractPlain(data []byte) (string, error) {
	if bytes.IndexByte(data, 0x00) != -1 {
		return "", fmt.Errorf("%w: binary content in .txt upload", ErrNoExtractableText)
	}
	return finish(string(data))
}

func finish(s string) (string, error) {
	s = normalizeWhitespace(s)
	if len(s) < minExtractedChars {
		return "", fmt.Errorf("%w: extracted %d characters", ErrNoExtractableText, len(s))
	}
	return s, nil
}

// normalizeWhitespace collapses runs of spaces within lines but keeps line
// structure, which downstream answer extraction depends on.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
