package caption

import (
	"fmt"
	"strings"
)

// Chunk is one timestamped piece of transcribed text. Timestamps are in
// seconds; whether they are engine-relative or session-absolute depends on
// where in the pipeline the chunk sits. Chunks are immutable once appended to
// an Accumulator.
type Chunk struct {
	Text  string  `json:"text"`
	Start float64 `json:"start_ts"`
	End   float64 `json:"end_ts"`
}

// Accumulator holds the ordered transcript of one session. The list is
// append-only and chronological; correctness relies on the non-overlapping
// segments produced upstream, so no deduplication or reordering happens here.
type Accumulator struct {
	chunks []Chunk
}

// Append adds chunks to the end of the transcript.
func (a *Accumulator) Append(chunks ...Chunk) {
	a.chunks = append(a.chunks, chunks...)
}

// Len returns the number of accumulated chunks.
func (a *Accumulator) Len() int {
	return len(a.chunks)
}

// Chunks returns a copy of the accumulated chunk list.
func (a *Accumulator) Chunks() []Chunk {
	out := make([]Chunk, len(a.chunks))
	copy(out, a.chunks)
	return out
}

// Render formats the entire accumulated transcript as an SRT block.
func (a *Accumulator) Render() string {
	return RenderSRT(a.chunks)
}

// RenderSRT formats chunks as sequential timed-caption blocks:
// a 1-based index line, a "HH:MM:SS,mmm --> HH:MM:SS,mmm" line, and the
// trimmed text, with blocks joined by a blank line.
func RenderSRT(chunks []Chunk) string {
	blocks := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s\n",
			i+1,
			FormatTimestamp(chunk.Start),
			FormatTimestamp(chunk.End),
			strings.TrimSpace(chunk.Text),
		))
	}
	return strings.Join(blocks, "\n")
}

// FormatTimestamp renders seconds as the SRT time format HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(seconds*1000 + 0.5)
	millis := totalMillis % 1000
	totalSeconds := totalMillis / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		totalSeconds/3600,
		(totalSeconds%3600)/60,
		totalSeconds%60,
		millis,
	)
}
