package waveform

import (
	"errors"
	"math"
	"testing"
)

const eps = 1e-12

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestLinearIncludesEndpoints(t *testing.T) {
	got, err := Linear(0, 0.1, 0.01)
	if err != nil {
		t.Fatalf("Linear() error = %v", err)
	}
	if len(got) != 11 {
		t.Fatalf("len = %d, want 11", len(got))
	}
	if got[0] != 0 || got[len(got)-1] != 0.1 {
		t.Fatalf("endpoints = %v, %v, want 0, 0.1", got[0], got[len(got)-1])
	}
}

func TestLinearDirectionFollowsEndpoints(t *testing.T) {
	got, err := Linear(1, -1, -0.5)
	if err != nil {
		t.Fatalf("Linear() error = %v", err)
	}
	want := []float64{1, 0.5, 0, -0.5, -1}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLinearRoundsHalfAwayFromZero(t *testing.T) {
	// 0.25/0.1 = 2.5 -> 3 intervals, 4 points
	got, err := Linear(0, 0.25, 0.1)
	if err != nil {
		t.Fatalf("Linear() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[len(got)-1] != 0.25 {
		t.Fatalf("last = %v, want 0.25", got[len(got)-1])
	}
}

func TestLinearSinglePoint(t *testing.T) {
	got, err := Linear(0.3, 0.3, 0.1)
	if err != nil {
		t.Fatalf("Linear() error = %v", err)
	}
	if len(got) != 1 || got[0] != 0.3 {
		t.Fatalf("got %v, want [0.3]", got)
	}
}

func TestLinearInvalid(t *testing.T) {
	cases := []struct {
		name              string
		start, stop, step float64
	}{
		{"zero step", 0, 1, 0},
		{"nan start", math.NaN(), 1, 0.1},
		{"inf stop", 0, math.Inf(1), 0.1},
		{"tiny step overflows", 0, 1e308, 1e-308},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Linear(tc.start, tc.stop, tc.step); !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("Linear() error = %v, want ErrInvalidRange", err)
			}
		})
	}
}

func TestLinearRejectsTooManyPoints(t *testing.T) {
	if _, err := Linear(0, 1, 1e-9); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Linear() error = %v, want ErrInvalidRange", err)
	}
	if _, err := Generate(-1e3, 1e3, 1e-9, B1); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Generate() error = %v, want ErrInvalidRange", err)
	}
	got, err := Linear(0, MaxPoints-1, 1)
	if err != nil || len(got) != MaxPoints {
		t.Fatalf("Linear() at the cap = %d points, err = %v", len(got), err)
	}
}

func TestGenerateB1Symmetric(t *testing.T) {
	w, err := Generate(-0.1, 0.1, 0.01, B1)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if w.PrePassover != nil || w.PostPassover != nil {
		t.Fatalf("B1 must not have passovers: %+v", w)
	}
	// up 11 + down 20 + back 10
	if len(w.Sweep) != 41 {
		t.Fatalf("len(sweep) = %d, want 41", len(w.Sweep))
	}
	if w.Sweep[0] != 0 || w.Sweep[len(w.Sweep)-1] != 0 {
		t.Fatalf("B1 must start and end at 0, got %v .. %v", w.Sweep[0], w.Sweep[len(w.Sweep)-1])
	}
	if w.Sweep[10] != 0.1 {
		t.Fatalf("up must end at max, got %v", w.Sweep[10])
	}
	high, step := 0.1, 0.01
	if w.Sweep[11] != high-step {
		t.Fatalf("down must start at max-step, got %v", w.Sweep[11])
	}
	if w.Sweep[30] != -0.1 {
		t.Fatalf("down must end at min, got %v", w.Sweep[30])
	}
	if !near(w.Sweep[31], -0.09) {
		t.Fatalf("last segment must start at min+step, got %v", w.Sweep[31])
	}
	for i := 1; i < len(w.Sweep); i++ {
		if w.Sweep[i] == w.Sweep[i-1] {
			t.Fatalf("repeated value %v at %d", w.Sweep[i], i)
		}
	}
}

func TestGenerateB2(t *testing.T) {
	w, err := Generate(-0.1, 0.1, 0.01, B2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if w.PrePassover != nil {
		t.Fatalf("B2 must not have a pre-passover")
	}
	if w.Sweep[0] != 0 {
		t.Fatalf("first = %v, want 0", w.Sweep[0])
	}
	if last := w.Sweep[len(w.Sweep)-1]; last != 0.1 {
		t.Fatalf("last = %v, want max", last)
	}
	if len(w.PostPassover) != 10 {
		t.Fatalf("len(post) = %d, want 10", len(w.PostPassover))
	}
	if last := w.PostPassover[len(w.PostPassover)-1]; last != 0 {
		t.Fatalf("post must end at 0, got %v", last)
	}
}

func TestGenerateB3(t *testing.T) {
	w, err := Generate(-0.1, 0.1, 0.01, B3)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if w.Sweep[0] == 0 {
		t.Fatal("B3 sweep must not start at 0")
	}
	high, step := 0.1, 0.01
	if w.Sweep[0] != high-step {
		t.Fatalf("first = %v, want max-step", w.Sweep[0])
	}
	if last := w.PrePassover[len(w.PrePassover)-1]; last != 0.1 {
		t.Fatalf("pre must end at max, got %v", last)
	}
	if last := w.Sweep[len(w.Sweep)-1]; last != 0.1 {
		t.Fatalf("sweep must end at max, got %v", last)
	}
	if last := w.PostPassover[len(w.PostPassover)-1]; last != 0 {
		t.Fatalf("post must end at 0, got %v", last)
	}
	if w.Len() != len(w.PrePassover)+len(w.Sweep)+len(w.PostPassover) {
		t.Fatalf("Len() = %d", w.Len())
	}
}

func TestGenerateUnevenStepKeepsBoundary(t *testing.T) {
	w, err := Generate(-0.25, 0.25, 0.1, B1)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	found := false
	for _, v := range w.Sweep {
		if v == 0.25 {
			found = true
		}
	}
	if !found {
		t.Fatalf("max 0.25 missing from %v", w.Sweep)
	}
	if last := w.Sweep[len(w.Sweep)-1]; last != 0 {
		t.Fatalf("last = %v, want 0", last)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	if _, err := Generate(-1, 1, 0, B1); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("zero step: error = %v", err)
	}
	if _, err := Generate(-1, 1, -0.1, B1); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("negative step: error = %v", err)
	}
	if _, err := Generate(1, -1, 0.1, B1); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("max < min: error = %v", err)
	}
	if _, err := Generate(-1, 1, 0.1, Topology("B4")); !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("unknown topology: error = %v", err)
	}
}

func TestParseTopology(t *testing.T) {
	for _, want := range Topologies() {
		got, err := ParseTopology(string(want))
		if err != nil || got != want {
			t.Fatalf("ParseTopology(%q) = %v, %v", want, got, err)
		}
	}
	if _, err := ParseTopology("b1"); !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("ParseTopology(b1) error = %v", err)
	}
}

func TestTabularDropsDuplicateJoins(t *testing.T) {
	got, err := Tabular([]float64{2, -2}, []float64{-2, 0}, []float64{1, 1})
	if err != nil {
		t.Fatalf("Tabular() error = %v", err)
	}
	want := []float64{2, 1, 0, -1, -2, -1, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTabularLengthMismatch(t *testing.T) {
	if _, err := Tabular([]float64{0}, []float64{1, 2}, []float64{0.1}); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Tabular() error = %v, want ErrInvalidRange", err)
	}
}
