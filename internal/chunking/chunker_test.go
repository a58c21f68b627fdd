package chunking

import (
	"reflect"
	"strings"
	"testing"
)

func TestNewChunker_RejectsBadParameters(t *testing.T) {
	if _, err := NewChunker(0, 0); err == nil {
		t.Fatalf("expected error for zero size")
	}
	if _, err := NewChunker(100, 100); err == nil {
		t.Fatalf("expected error for overlap == size")
	}
	if _, err := NewChunker(100, -1); err == nil {
		t.Fatalf("expected error for negative overlap")
	}
}

func TestSplit_EmptyTextYieldsNoChunks(t *testing.T) {
	c, err := NewChunker(800, 100)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	if got := c.Split("", PageMap{0}); len(got) != 0 {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
}

func TestSplit_ShortDocumentYieldsOneChunk(t *testing.T) {
	c, err := NewChunker(800, 100)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	text := "short contract body"
	got := c.Split(text, PageMap{0})
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].Text != text {
		t.Fatalf("chunk text mismatch: %q", got[0].Text)
	}
	if got[0].Span.CharStart != 0 || got[0].Span.CharEnd != len(text) || got[0].Span.PageNumber != 0 {
		t.Fatalf("unexpected span: %+v", got[0].Span)
	}
}

func TestSplit_ThreePageScenario(t *testing.T) {
	// 2400 bytes over three 800-byte pages, chunk size 800, overlap 100.
	text := strings.Repeat("a", 800) + strings.Repeat("b", 800) + strings.Repeat("c", 800)
	pages := PageMap{0, 800, 1600}

	c, err := NewChunker(800, 100)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	got := c.Split(text, pages)
	if len(got) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(got))
	}

	type window struct{ page, start, end int }
	want := []window{
		{0, 0, 800},
		{0, 700, 1500},
		{1, 1400, 1600},
		{2, 1600, 2400},
	}
	for i, w := range want {
		sp := got[i].Span
		if sp.PageNumber != w.page || sp.CharStart != w.start || sp.CharEnd != w.end {
			t.Fatalf("chunk %d: got span %+v, want %+v", i, sp, w)
		}
		if got[i].Text != text[w.start:w.end] {
			t.Fatalf("chunk %d: text does not match span slice", i)
		}
	}
}

func TestSplit_ChunkNeverRunsFarPastPageBoundary(t *testing.T) {
	text := strings.Repeat("x", 500) + strings.Repeat("y", 2000)
	pages := PageMap{0, 500}

	c, err := NewChunker(800, 100)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	assertNoMergedPages(t, c, c.Split(text, pages), pages)
}

// assertNoMergedPages checks every page start against every chunk: a
// break inside a chunk must sit within the chunk's leading overlap.
func assertNoMergedPages(t *testing.T, c *Chunker, chunks []Chunk, pages PageMap) {
	t.Helper()
	for _, ch := range chunks {
		for _, p := range pages {
			if p <= ch.Span.CharStart || p >= ch.Span.CharEnd {
				continue
			}
			if p-ch.Span.CharStart > c.Overlap {
				t.Fatalf("chunk [%d,%d) merges page break at %d, %d bytes past its start (> overlap %d)",
					ch.Span.CharStart, ch.Span.CharEnd, p, p-ch.Span.CharStart, c.Overlap)
			}
		}
	}
}

func TestSplit_ShortPageIsNotMergedPastOverlap(t *testing.T) {
	// A 300-byte middle page is shorter than size-overlap, so two page
	// breaks fall inside one candidate window. The first sits in the
	// overlap region and stays; the second must still cut the window.
	text := strings.Repeat("a", 800) + strings.Repeat("b", 300) + strings.Repeat("c", 1300)
	pages := PageMap{0, 800, 1100}

	c, err := NewChunker(800, 100)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	got := c.Split(text, pages)
	assertNoMergedPages(t, c, got, pages)

	type window struct{ page, start, end int }
	want := []window{
		{0, 0, 800},
		{0, 700, 1100},
		{2, 1100, 1900},
		{2, 1800, 2400},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i, w := range want {
		sp := got[i].Span
		if sp.PageNumber != w.page || sp.CharStart != w.start || sp.CharEnd != w.end {
			t.Fatalf("chunk %d: got span %+v, want %+v", i, sp, w)
		}
		if got[i].Text != text[w.start:w.end] {
			t.Fatalf("chunk %d: text does not match span slice", i)
		}
	}
}

func TestSplit_CoverageReconstructsFullText(t *testing.T) {
	text := strings.Repeat("the parties agree as follows. ", 200)
	pages := PageMap{0, 1700, 4100}

	c, err := NewChunker(800, 100)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	chunks := c.Split(text, pages)
	if len(chunks) == 0 {
		t.Fatalf("expected chunks")
	}

	if chunks[0].Span.CharStart != 0 {
		t.Fatalf("first chunk does not start at 0")
	}
	if chunks[len(chunks)-1].Span.CharEnd != len(text) {
		t.Fatalf("last chunk does not reach end of text")
	}

	var b strings.Builder
	prevEnd := 0
	for i, ch := range chunks {
		if ch.Span.CharStart > prevEnd {
			t.Fatalf("gap before chunk %d: [%d,%d) after end %d", i, ch.Span.CharStart, ch.Span.CharEnd, prevEnd)
		}
		b.WriteString(ch.Text[prevEnd-ch.Span.CharStart:])
		prevEnd = ch.Span.CharEnd
	}
	if b.String() != text {
		t.Fatalf("reconstructed text differs from input")
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("payment is due within sixty days. ", 150)
	pages := PageMap{0, 2000, 3500}

	c, err := NewChunker(800, 100)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	first := c.Split(text, pages)
	second := c.Split(text, pages)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical input produced different chunk sequences")
	}
}

func TestPageFor_LocatesOffsets(t *testing.T) {
	pm := PageMap{0, 100, 250}
	cases := []struct{ offset, page int }{
		{0, 0}, {99, 0}, {100, 1}, {249, 1}, {250, 2}, {9999, 2},
	}
	for _, tc := range cases {
		if got := pm.PageFor(tc.offset); got != tc.page {
			t.Fatalf("PageFor(%d) = %d, want %d", tc.offset, got, tc.page)
		}
	}
	if got := (PageMap{}).PageFor(42); got != 0 {
		t.Fatalf("empty map PageFor = %d, want 0", got)
	}
}
