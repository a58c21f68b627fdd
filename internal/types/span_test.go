package types

import "testing"

func TestSpanValid(t *testing.T) {
	cases := []struct {
		span Span
		want bool
	}{
		{NewSpan(0, 0, 10), true},
		{NewSpan(3, 100, 101), true},
		{NewSpan(0, 10, 10), false},
		{NewSpan(0, 10, 5), false},
		{NewSpan(-1, 0, 10), false},
		{NewSpan(0, -5, 10), false},
	}
	for _, tc := range cases {
		if got := tc.span.Valid(); got != tc.want {
			t.Fatalf("Valid(%+v) = %v, want %v", tc.span, got, tc.want)
		}
	}
}

func TestSpanContains(t *testing.T) {
	outer := NewSpan(0, 100, 200)
	if !outer.Contains(NewSpan(0, 100, 200)) {
		t.Fatalf("span should contain itself")
	}
	if !outer.Contains(NewSpan(0, 120, 180)) {
		t.Fatalf("expected interior span to be contained")
	}
	if outer.Contains(NewSpan(0, 90, 150)) {
		t.Fatalf("span extending before start must not be contained")
	}
	if outer.Contains(NewSpan(0, 150, 250)) {
		t.Fatalf("span extending past end must not be contained")
	}
}

func TestSpanOverlaps(t *testing.T) {
	a := NewSpan(0, 100, 200)
	if !a.Overlaps(NewSpan(0, 150, 250)) {
		t.Fatalf("expected overlap")
	}
	if !a.Overlaps(NewSpan(0, 199, 300)) {
		t.Fatalf("expected single-byte overlap")
	}
	if a.Overlaps(NewSpan(0, 200, 300)) {
		t.Fatalf("adjacent spans must not overlap")
	}
	if a.Overlaps(NewSpan(0, 0, 100)) {
		t.Fatalf("adjacent spans must not overlap")
	}
}
