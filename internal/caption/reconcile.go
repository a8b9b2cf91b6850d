package caption

// jumpTolerance is the slack allowed before a chunk starting earlier than the
// previous chunk ended is considered an engine clock reset rather than a
// harmless overlap.
const jumpTolerance = 0.5

// Rebase shifts chunk timestamps by a fixed offset. Used per round to convert
// engine-relative times (0.0 at the segment's own start) into session-absolute
// times: offset = processed duration before the round + configured time offset
// + the segment's start within the round's buffer.
func Rebase(chunks []Chunk, offset float64) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = Chunk{
			Text:  c.Text,
			Start: c.Start + offset,
			End:   c.End + offset,
		}
	}
	return out
}

// AlignContinuous rebases a single-shot transcription whose engine may have
// reset its internal clock between internal passes. When a chunk's start
// precedes the previous chunk's end by more than the tolerance, an
// accumulating offset equal to the previous chunk's relative end is added so
// the output timeline stays monotonic.
func AlignContinuous(chunks []Chunk, timeOffset float64) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	offset := timeOffset
	lastEnd := 0.0

	for _, c := range chunks {
		if c.Start < lastEnd-jumpTolerance {
			offset += lastEnd
		}
		out = append(out, Chunk{
			Text:  c.Text,
			Start: c.Start + offset,
			End:   c.End + offset,
		})
		lastEnd = c.End
	}
	return out
}
