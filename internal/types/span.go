package types

// Span locates a piece of text inside a document's full extracted text.
// Offsets are byte offsets into Document.FullText; PageNumber is the
// zero-based page the span starts on.
type Span struct {
	PageNumber int `gorm:"column:page_number" json:"page_number"`
	CharStart  int `gorm:"column:char_start" json:"char_start"`
	CharEnd    int `gorm:"column:char_end" json:"char_end"`
}

func NewSpan(page, start, end int) Span {
	return Span{PageNumber: page, CharStart: start, CharEnd: end}
}

func (s Span) Valid() bool {
	return s.PageNumber >= 0 && s.CharStart >= 0 && s.CharEnd > s.CharStart
}

func (s Span) Len() int {
	return s.CharEnd - s.CharStart
}

// Contains reports whether other lies entirely inside s.
func (s Span) Contains(other Span) bool {
	return other.CharStart >= s.CharStart && other.CharEnd <= s.CharEnd
}

// Overlaps reports whether the two spans share at least one offset.
func (s Span) Overlaps(other Span) bool {
	return s.CharStart < other.CharEnd && other.CharStart < s.CharEnd
}
