package partition

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWorkers is returned when the worker count is below one.
	ErrInvalidWorkers = errors.New("partition: worker count must be at least 1")
	// ErrNegativeTotal is returned when the element count is negative.
	ErrNegativeTotal = errors.New("partition: total must be non-negative")
)

// Range is a half-open span [Start, Start+Count) of flat pixel indices.
type Range struct {
	Start int
	Count int
}

// End returns the exclusive upper bound of the range.
func (r Range) End() int { return r.Start + r.Count }

// Empty reports whether the range covers no indices.
func (r Range) Empty() bool { return r.Count == 0 }

// Contains reports whether idx falls inside the range.
func (r Range) Contains(idx int) bool { return idx >= r.Start && idx < r.End() }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End()) }

// Partition assigns Counts[i] elements starting at Offsets[i] to worker i.
type Partition struct {
	Counts  []int
	Offsets []int
}

// Plan splits total elements across workers. The remainder
// (total mod workers) goes one each to the lowest-indexed workers, so
// counts differ by at most one.
func Plan(total, workers int) (Partition, error) {
	if workers < 1 {
		return Partition{}, fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}
	if total < 0 {
		return Partition{}, fmt.Errorf("%w: got %d", ErrNegativeTotal, total)
	}

	base := total / workers
	remainder := total % workers

	p := Partition{
		Counts:  make([]int, workers),
		Offsets: make([]int, workers),
	}
	for i := range p.Counts {
		p.Counts[i] = base
		if i < remainder {
			p.Counts[i]++
		}
	}
	for i := 1; i < workers; i++ {
		p.Offsets[i] = p.Offsets[i-1] + p.Counts[i-1]
	}
	return p, nil
}

// MustPlan is Plan for callers that have already validated their inputs.
// It panics on error.
func MustPlan(total, workers int) Partition {
	p, err := Plan(total, workers)
	if err != nil {
		panic(err)
	}
	return p
}

// Workers returns the number of ranges in the partition.
func (p Partition) Workers() int { return len(p.Counts) }

// Total returns the number of elements covered.
func (p Partition) Total() int {
	n := 0
	for _, c := range p.Counts {
		n += c
	}
	return n
}

// Range returns worker i's assigned range.
func (p Partition) Range(i int) Range {
	return Range{Start: p.Offsets[i], Count: p.Counts[i]}
}

// Ranges returns every worker's range in worker order.
func (p Partition) Ranges() []Range {
	out := make([]Range, len(p.Counts))
	for i := range p.Counts {
		out[i] = p.Range(i)
	}
	return out
}

// Owner returns the worker whose range contains idx, or -1 when idx is
// outside [0, Total()).
func (p Partition) Owner(idx int) int {
	for i := range p.Counts {
		if p.Range(i).Contains(idx) {
			return i
		}
	}
	return -1
}

// Validate checks that the ranges are non-negative, contiguous and start
// at zero.
func (p Partition) Validate() error {
	if len(p.Counts) == 0 {
		return ErrInvalidWorkers
	}
	if len(p.Offsets) != len(p.Counts) {
		return fmt.Errorf("partition: %d offsets for %d counts", len(p.Offsets), len(p.Counts))
	}
	next := 0
	for i := range p.Counts {
		if p.Counts[i] < 0 {
			return fmt.Errorf("partition: worker %d has negative count %d", i, p.Counts[i])
		}
		if p.Offsets[i] != next {
			return fmt.Errorf("partition: worker %d offset %d, want %d", i, p.Offsets[i], next)
		}
		next += p.Counts[i]
	}
	return nil
}

// Equal reports whether two partitions assign identical ranges.
func (p Partition) Equal(o Partition) bool {
	if len(p.Counts) != len(o.Counts) || len(p.Offsets) != len(o.Offsets) {
		return false
	}
	for i := range p.Counts {
		if p.Counts[i] != o.Counts[i] || p.Offsets[i] != o.Offsets[i] {
			return false
		}
	}
	return true
}
