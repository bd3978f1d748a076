package delbin

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

const eof = -1

// Location is a single point in schema source text: a 1-based line and
// rune column, plus the 0-based byte offset used for slicing the raw
// source when building an error excerpt.
type Location struct {
	Line   int
	Column int
	Offset int
}

// Span is a half-open [Start, End) range over source text, attached to
// every AST node and carried by every CompileError so diagnostics can
// point back at the schema.
type Span struct {
	Start Location
	End   Location
}

func (s Span) String() string {
	if s.Start.Line == s.End.Line && s.Start.Column == s.End.Column {
		return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
	}
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%d:%d..%d", s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%d:%d..%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// LineIndex maps byte offsets back to line/column pairs. It stores the
// start byte offset of each line and binary searches it, so error
// excerpts stay cheap even for large schemas.
type LineIndex struct {
	input     []byte
	lineStart []int
}

func NewLineIndex(input []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{input: input, lineStart: lineStart}
}

func (li *LineIndex) LocationAt(offset int) Location {
	if offset < 0 {
		offset = 0
	}
	if offset > len(li.input) {
		offset = len(li.input)
	}
	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > offset
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := li.lineStart[lineIdx]
	col := utf8.RuneCount(li.input[lineStart:offset]) + 1
	return Location{Line: lineIdx + 1, Column: col, Offset: offset}
}

// Excerpt returns the source text of the line containing loc, for use in
// error messages.
func (li *LineIndex) Excerpt(loc Location) string {
	lineIdx := loc.Line - 1
	if lineIdx < 0 || lineIdx >= len(li.lineStart) {
		return ""
	}
	start := li.lineStart[lineIdx]
	end := len(li.input)
	if lineIdx+1 < len(li.lineStart) {
		end = li.lineStart[lineIdx+1] - 1
	}
	if end < start {
		end = start
	}
	if end > len(li.input) {
		end = len(li.input)
	}
	return string(li.input[start:end])
}
