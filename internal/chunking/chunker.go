package chunking

import (
	"fmt"
	"sort"

	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

// PageMap holds the byte offset where each page of a document starts
// inside the concatenated full text. Entry 0 is always 0 for any
// non-empty document.
type PageMap []int

// PageFor returns the zero-based page the offset falls on. An empty
// map means the whole text is treated as one page.
func (pm PageMap) PageFor(offset int) int {
	if len(pm) == 0 {
		return 0
	}
	// First page start greater than offset, minus one.
	i := sort.SearchInts(pm, offset+1)
	if i == 0 {
		return 0
	}
	return i - 1
}

// nextBoundary returns the first page start strictly inside (start, end),
// or -1 when no page break falls inside the window.
func (pm PageMap) nextBoundary(start, end int) int {
	i := sort.SearchInts(pm, start+1)
	if i < len(pm) && pm[i] < end {
		return pm[i]
	}
	return -1
}

// Chunk is one retrieval window of a document's text plus its location.
type Chunk struct {
	Text string
	Span types.Span
}

// Chunker splits full text into overlapping fixed-size windows. Both
// parameters are bytes; Overlap must be strictly less than Size.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got size=%d overlap=%d", size, overlap)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// Split produces the ordered chunk sequence for fullText. It is a
// greedy fixed-window split that honors page boundaries: a window that
// would run more than Overlap bytes past a page break is cut at the
// break, and the chunk after a cut starts exactly at the new page so
// overlap never re-crosses the boundary. A page break within the first
// Overlap bytes of a window is the carried-over overlap region and is
// allowed; such a chunk records the page of its starting offset.
//
// Identical input always yields an identical sequence. Empty text
// yields no chunks; text shorter than Size yields exactly one chunk
// covering everything.
func (c *Chunker) Split(fullText string, pages PageMap) []Chunk {
	n := len(fullText)
	if n == 0 {
		return nil
	}

	out := make([]Chunk, 0, n/(c.Size-c.Overlap)+1)
	start := 0
	for start < n {
		end := start + c.Size
		if end > n {
			end = n
		}
		// A break inside [start, start+Overlap] is the carried-over
		// overlap region and stays; any break past it cuts the window,
		// even when an earlier one sat inside the overlap.
		cut := false
		if b := pages.nextBoundary(start+c.Overlap, end); b >= 0 {
			end = b
			cut = true
		}

		out = append(out, Chunk{
			Text: fullText[start:end],
			Span: types.NewSpan(pages.PageFor(start), start, end),
		})
		if end == n {
			break
		}

		next := end - c.Overlap
		if cut || next <= start {
			next = end
		}
		start = next
	}
	return out
}
