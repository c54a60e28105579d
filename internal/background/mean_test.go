package background

import (
	"math/rand"
	"testing"

	"github.com/banshee-data/framebg/internal/frame"
	"github.com/banshee-data/framebg/internal/partition"
	"github.com/google/go-cmp/cmp"
)

func grid(t *testing.T, w, h int, r, g, b []int) *frame.Grid {
	t.Helper()
	out, err := frame.FromChannels(w, h, [frame.NumChannels][]int{r, g, b})
	if err != nil {
		t.Fatalf("FromChannels: %v", err)
	}
	return out
}

func zeros(n int) []int { return make([]int, n) }

func TestCompute_ThreeFrameScenario(t *testing.T) {
	seq := frame.Sequence{
		grid(t, 2, 2, []int{10, 20, 30, 40}, zeros(4), zeros(4)),
		grid(t, 2, 2, []int{20, 20, 30, 40}, zeros(4), zeros(4)),
		grid(t, 2, 2, []int{30, 20, 30, 40}, zeros(4), zeros(4)),
	}
	bg, err := Compute(seq)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if diff := cmp.Diff([]int{20, 20, 30, 40}, bg.Red); diff != "" {
		t.Errorf("red mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(zeros(4), bg.Green); diff != "" {
		t.Errorf("green mismatch (-want +got):\n%s", diff)
	}
}

func TestAccumulate_FloorDivision(t *testing.T) {
	seq := frame.Sequence{
		grid(t, 3, 1, []int{0, 1, 255}, []int{1, 1, 254}, []int{2, 2, 255}),
		grid(t, 3, 1, []int{1, 1, 255}, []int{1, 2, 255}, []int{2, 2, 254}),
	}
	m, err := Accumulate(seq, partition.Range{Start: 0, Count: 3})
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if diff := cmp.Diff([]int{0, 1, 255}, m.Red); diff != "" {
		t.Errorf("red (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 1, 254}, m.Green); diff != "" {
		t.Errorf("green (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 2, 254}, m.Blue); diff != "" {
		t.Errorf("blue (-want +got):\n%s", diff)
	}
}

func randomSequence(rng *rand.Rand, w, h, n int) frame.Sequence {
	seq := make(frame.Sequence, n)
	for f := range seq {
		g, _ := frame.NewGrid(w, h)
		for _, plane := range g.Channels() {
			for i := range plane {
				plane[i] = rng.Intn(256)
			}
		}
		seq[f] = g
	}
	return seq
}

func TestAccumulate_RangeIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seq := randomSequence(rng, 7, 5, 9)
	full, err := Compute(seq)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	for workers := 1; workers <= 8; workers++ {
		p := partition.MustPlan(full.Len(), workers)
		for _, r := range p.Ranges() {
			m, err := Accumulate(seq, r)
			if err != nil {
				t.Fatalf("Accumulate(%v): %v", r, err)
			}
			want := full.View(r)
			got := m.Channels()
			for c := range got {
				if diff := cmp.Diff(want[c], got[c]); diff != "" {
					t.Fatalf("workers=%d range=%v channel=%d mismatch:\n%s", workers, r, c, diff)
				}
			}
		}
	}
}

func TestCompute_PermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	seq := randomSequence(rng, 6, 4, 12)
	want, err := Compute(seq)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for trial := 0; trial < 5; trial++ {
		shuffled := append(frame.Sequence(nil), seq...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := Compute(shuffled)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("trial %d: background depends on frame order:\n%s", trial, diff)
		}
	}
}

func TestCompute_StaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	seq := randomSequence(rng, 8, 8, 30)
	for _, g := range seq[:10] {
		for _, plane := range g.Channels() {
			for i := range plane {
				plane[i] = 255
			}
		}
	}
	bg, err := Compute(seq)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for c, plane := range bg.Channels() {
		for i, v := range plane {
			if v < 0 || v > 255 {
				t.Fatalf("channel %d pixel %d = %d out of range", c, i, v)
			}
		}
	}
}

func TestAccumulate_Errors(t *testing.T) {
	if _, err := Accumulate(nil, partition.Range{}); err == nil {
		t.Error("expected error for empty sequence")
	}
	seq := frame.Sequence{grid(t, 2, 1, []int{1, 2}, []int{1, 2}, []int{1, 2})}
	if _, err := Accumulate(seq, partition.Range{Start: 1, Count: 2}); err == nil {
		t.Error("expected error for out-of-bounds range")
	}
}

func TestKernel(t *testing.T) {
	seq := frame.Sequence{
		grid(t, 2, 1, []int{1, 3}, []int{5, 7}, []int{9, 11}),
		grid(t, 2, 1, []int{2, 4}, []int{6, 8}, []int{10, 12}),
	}
	out := [][]int{zeros(2), zeros(2), zeros(2)}
	tally, err := Kernel(2)(seq.Planes(), out)
	if err != nil {
		t.Fatalf("kernel: %v", err)
	}
	if tally != 0 {
		t.Errorf("tally = %d, want 0", tally)
	}
	want := [][]int{{1, 3}, {5, 7}, {9, 11}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("kernel output (-want +got):\n%s", diff)
	}

	if _, err := Kernel(3)(seq.Planes(), out); err == nil {
		t.Error("expected plane count error")
	}
	if _, err := Kernel(0)(nil, out); err == nil {
		t.Error("expected error for zero frames")
	}
}
