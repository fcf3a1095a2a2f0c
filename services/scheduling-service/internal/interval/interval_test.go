package interval

import (
	"math/rand"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func TestOverlapsTouchingIsNotOverlap(t *testing.T) {
	a := iv(9, 0, 10, 0)
	b := iv(10, 0, 11, 0)
	if Overlaps(a, b) || Overlaps(b, a) {
		t.Fatal("touching intervals must not overlap")
	}
	if !Overlaps(a, iv(9, 59, 10, 30)) {
		t.Fatal("expected overlap")
	}
	if !Overlaps(iv(8, 0, 12, 0), iv(9, 0, 9, 30)) {
		t.Fatal("expected containment to count as overlap")
	}
}

func TestContains(t *testing.T) {
	outer := iv(8, 0, 12, 0)
	if !outer.Contains(iv(8, 0, 12, 0)) || !outer.Contains(iv(11, 30, 12, 0)) {
		t.Fatal("expected containment at the edges")
	}
	if outer.Contains(iv(11, 45, 12, 15)) {
		t.Fatal("interval past the end is not contained")
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Interval{
		iv(11, 0, 12, 0),
		iv(9, 0, 10, 0),
		iv(10, 0, 10, 30), // adjacent, coalesced
		iv(9, 15, 9, 45),  // interior
		iv(13, 0, 13, 0),  // empty, dropped
	})
	want := []Interval{iv(9, 0, 10, 30), iv(11, 0, 12, 0)}
	assertIntervals(t, got, want)
}

func TestSubtract(t *testing.T) {
	cases := []struct {
		name     string
		base     Interval
		excluded []Interval
		want     []Interval
	}{
		{"nothing excluded", iv(8, 0, 12, 0), nil, []Interval{iv(8, 0, 12, 0)}},
		{"interior hole", iv(8, 0, 12, 0), []Interval{iv(9, 0, 9, 30)}, []Interval{iv(8, 0, 9, 0), iv(9, 30, 12, 0)}},
		{"prefix", iv(8, 0, 12, 0), []Interval{iv(7, 0, 8, 30)}, []Interval{iv(8, 30, 12, 0)}},
		{"suffix", iv(8, 0, 12, 0), []Interval{iv(11, 0, 13, 0)}, []Interval{iv(8, 0, 11, 0)}},
		{"fully covered", iv(8, 0, 12, 0), []Interval{iv(7, 0, 13, 0)}, nil},
		{"touching outside", iv(8, 0, 12, 0), []Interval{iv(7, 0, 8, 0), iv(12, 0, 13, 0)}, []Interval{iv(8, 0, 12, 0)}},
		{"unsorted overlapping exclusions", iv(8, 0, 12, 0),
			[]Interval{iv(10, 0, 11, 0), iv(9, 0, 10, 15), iv(9, 30, 9, 45)},
			[]Interval{iv(8, 0, 9, 0), iv(11, 0, 12, 0)}},
		{"adjacent exclusions leave no zero-length gap", iv(8, 0, 12, 0),
			[]Interval{iv(9, 0, 10, 0), iv(10, 0, 11, 0)},
			[]Interval{iv(8, 0, 9, 0), iv(11, 0, 12, 0)}},
		{"empty base", iv(8, 0, 8, 0), nil, nil},
		{"zero-length exclusion removes nothing", iv(8, 0, 12, 0), []Interval{iv(9, 0, 9, 0)}, []Interval{iv(8, 0, 12, 0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertIntervals(t, Subtract(tc.base, tc.excluded), tc.want)
		})
	}
}

func TestSubtractIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := iv(6, 0, 20, 0)
	for n := 0; n < 200; n++ {
		var ex []Interval
		for k := 0; k < 5; k++ {
			s := rng.Intn(16 * 60)
			ex = append(ex, Interval{Start: at(5, s), End: at(5, s+rng.Intn(120))})
		}
		want := Subtract(b, ex)
		rng.Shuffle(len(ex), func(i, j int) { ex[i], ex[j] = ex[j], ex[i] })
		assertIntervals(t, Subtract(b, ex), want)

		// Zero-length exclusions remove nothing, so only the non-empty ones
		// must stay clear of the remainder.
		var solid []Interval
		for _, e := range ex {
			if !e.Empty() {
				solid = append(solid, e)
			}
		}
		for _, piece := range want {
			if piece.Empty() || !b.Contains(piece) || OverlapsAny(piece, solid) >= 0 {
				t.Fatalf("invalid remainder %s", piece)
			}
		}
	}
}

func TestSubtractAll(t *testing.T) {
	got := SubtractAll(
		[]Interval{iv(8, 0, 12, 0), iv(13, 0, 17, 0)},
		[]Interval{iv(11, 30, 13, 30)},
	)
	assertIntervals(t, got, []Interval{iv(8, 0, 11, 30), iv(13, 30, 17, 0)})
}

func assertIntervals(t *testing.T, got, want []Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
