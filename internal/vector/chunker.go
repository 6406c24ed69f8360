package vector

import "strings"

// Chunk is one overlapping window of a material's content, the unit that is
// embedded and indexed.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"` // rune offset into the source text
	End   int    `json:"end"`
}

const (
	DefaultChunkSize = 1200
	DefaultOverlap   = 200
	minChunkSize     = 200
)

// SplitIntoChunks splits long text into overlapping, bounded-size chunks.
// Offsets are rune-based so a UTF-8 sequence is never cut in half.
func SplitIntoChunks(text string, chunkSize, overlap int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	r := []rune(text)

	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	out := make([]Chunk, 0, (len(r)/step)+1)
	for start := 0; start < len(r); start += step {
		end := start + chunkSize
		if end > len(r) {
			end = len(r)
		}

		piece := strings.TrimSpace(string(r[start:end]))
		if piece != "" {
			out = append(out, Chunk{
				Index: len(out),
				Text:  piece,
				Start: start,
				End:   end,
			})
		}

		if end == len(r) {
			break
		}
	}

	return out
}
