package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/framebg/internal/background"
	"github.com/banshee-data/framebg/internal/collective"
	"github.com/banshee-data/framebg/internal/foreground"
	"github.com/banshee-data/framebg/internal/frame"
	"github.com/banshee-data/framebg/internal/partition"
	"github.com/banshee-data/framebg/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newPlanes(n, size int) [][]int {
	out := make([][]int, n)
	for i := range out {
		out[i] = make([]int, size)
	}
	return out
}

// pipelineOn runs the accumulate and mask jobs through s on the
// coordinator's buffers and returns the background planes, mask and tally.
func pipelineOn(ctx context.Context, s Strategy, seq frame.Sequence, threshold int) ([][]int, []int, int, error) {
	var total, frames int
	var planes [][]int
	var ref *frame.Grid
	if s.Coordinator() {
		w, h := seq.Dimensions()
		total, frames = w*h, len(seq)
		planes = seq.Planes()
		ref = seq.Reference()
	}
	dims := []int{total, frames}
	if err := s.Broadcast(ctx, dims); err != nil {
		return nil, nil, 0, err
	}
	total, frames = dims[0], dims[1]

	part, err := partition.Plan(total, s.Workers())
	if err != nil {
		return nil, nil, 0, err
	}

	var bg, mask [][]int
	if s.Coordinator() {
		bg = newPlanes(frame.NumChannels, total)
		mask = newPlanes(1, total)
	}
	acc := Job{Name: "accumulate", Inputs: frames * frame.NumChannels, Outputs: frame.NumChannels, Kernel: background.Kernel(frames)}
	if _, err := s.Map(ctx, part, acc, planes, bg); err != nil {
		return nil, nil, 0, err
	}

	var in [][]int
	if s.Coordinator() {
		in = append(append([][]int{}, bg...), ref.Red, ref.Green, ref.Blue)
	}
	mj := Job{Name: "mask", Inputs: 2 * frame.NumChannels, Outputs: 1, Kernel: foreground.Kernel(threshold)}
	n, err := s.Map(ctx, part, mj, in, mask)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := s.Barrier(ctx); err != nil {
		return nil, nil, 0, err
	}
	if !s.Coordinator() {
		return nil, nil, n, nil
	}
	return bg, mask[0], n, nil
}

func TestParseKind(t *testing.T) {
	tests := map[string]string{
		"sequential":  KindSequential,
		" Parallel ":  KindParallel,
		"threads":     KindParallel,
		"DISTRIBUTED": KindDistributed,
		"mpi":         KindDistributed,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("gpu")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New("sequential", 8, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Workers())
	assert.True(t, s.Coordinator())

	s, err = New("parallel", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Workers())

	_, err = New("parallel", 0, nil)
	assert.Error(t, err)

	_, err = New("distributed", 4, nil)
	assert.Error(t, err)

	comms, err := collective.NewLocalWorld(1)
	require.NoError(t, err)
	s, err = New("distributed", 4, comms[0])
	require.NoError(t, err)
	assert.Equal(t, 1, s.Workers())
	assert.True(t, s.Coordinator())
	assert.NoError(t, s.Close())
}

func TestSequential_Scenario(t *testing.T) {
	seq := testutil.ScenarioSequence()
	bg, mask, n, err := pipelineOn(context.Background(), Sequential{}, seq, 30)
	require.NoError(t, err)

	assert.Equal(t, []int{20, 20, 30, 40}, bg[frame.Red])
	assert.Equal(t, []int{0, 0, 0, 0}, bg[frame.Green])
	assert.Equal(t, []int{0, 0, 0, 0}, mask)
	assert.Zero(t, n)
}

func TestStrategies_Equivalent(t *testing.T) {
	seq := testutil.SyntheticSequence(13, 11, 6, 7)
	const threshold = 20

	wantBg, wantMask, wantN, err := pipelineOn(context.Background(), Sequential{}, seq, threshold)
	require.NoError(t, err)
	require.Positive(t, wantN, "fixture should produce foreground pixels")

	for _, workers := range []int{1, 2, 3, 4, 7, 200} {
		p, err := NewParallel(workers)
		require.NoError(t, err)
		bg, mask, n, err := pipelineOn(context.Background(), p, seq, threshold)
		require.NoError(t, err)
		if diff := cmp.Diff(wantBg, bg); diff != "" {
			t.Errorf("parallel(%d) background mismatch (-want +got):\n%s", workers, diff)
		}
		if diff := cmp.Diff(wantMask, mask); diff != "" {
			t.Errorf("parallel(%d) mask mismatch (-want +got):\n%s", workers, diff)
		}
		assert.Equal(t, wantN, n, "parallel(%d) tally", workers)
	}

	for _, size := range []int{1, 2, 3, 5} {
		bg, mask, n := runDistributed(t, size, seq, threshold)
		if diff := cmp.Diff(wantBg, bg); diff != "" {
			t.Errorf("distributed(%d) background mismatch (-want +got):\n%s", size, diff)
		}
		if diff := cmp.Diff(wantMask, mask); diff != "" {
			t.Errorf("distributed(%d) mask mismatch (-want +got):\n%s", size, diff)
		}
		assert.Equal(t, wantN, n, "distributed(%d) tally", size)
	}
}

func runDistributed(t *testing.T, size int, seq frame.Sequence, threshold int) ([][]int, []int, int) {
	t.Helper()
	comms, err := collective.NewLocalWorld(size)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var bg [][]int
	var mask []int
	var n int
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			s, err := NewDistributed(c)
			if err != nil {
				return err
			}
			defer s.Close()
			var local frame.Sequence
			if s.Coordinator() {
				local = seq
			}
			b, m, tally, err := pipelineOn(gctx, s, local, threshold)
			if err != nil {
				return err
			}
			if s.Coordinator() {
				bg, mask, n = b, m, tally
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return bg, mask, n
}

func TestMap_BufferValidation(t *testing.T) {
	part := partition.MustPlan(4, 2)
	job := Job{Name: "copy", Inputs: 1, Outputs: 1, Kernel: func(in, out [][]int) (int, error) {
		copy(out[0], in[0])
		return 0, nil
	}}
	p, err := NewParallel(2)
	require.NoError(t, err)

	for _, s := range []Strategy{Sequential{}, p} {
		_, err := s.Map(context.Background(), part, job, newPlanes(2, 4), newPlanes(1, 4))
		assert.Error(t, err, "%s: wrong input count", s.Name())
		_, err = s.Map(context.Background(), part, job, newPlanes(1, 3), newPlanes(1, 4))
		assert.Error(t, err, "%s: short input plane", s.Name())
		_, err = s.Map(context.Background(), part, job, newPlanes(1, 4), newPlanes(1, 5))
		assert.Error(t, err, "%s: long output plane", s.Name())
		_, err = s.Map(context.Background(), part, Job{Inputs: 1, Outputs: 1}, newPlanes(1, 4), newPlanes(1, 4))
		assert.Error(t, err, "%s: nil kernel", s.Name())

		in := [][]int{{1, 2, 3, 4}}
		out := newPlanes(1, 4)
		_, err = s.Map(context.Background(), part, job, in, out)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestParallel_KernelSeesOwnRangeOnly(t *testing.T) {
	p, err := NewParallel(3)
	require.NoError(t, err)
	part := partition.MustPlan(10, 3)

	out := newPlanes(1, 10)
	job := Job{Name: "len", Inputs: 1, Outputs: 1, Kernel: func(in, out [][]int) (int, error) {
		for i := range out[0] {
			out[0][i] = len(in[0])
		}
		// A kernel that appends must not spill into the next range.
		_ = append(out[0], -1)
		return len(in[0]), nil
	}}
	n, err := p.Map(context.Background(), part, job, newPlanes(1, 10), out)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []int{4, 4, 4, 4, 3, 3, 3, 3, 3, 3}, out[0])
}

func TestParallel_KernelError(t *testing.T) {
	p, err := NewParallel(4)
	require.NoError(t, err)
	boom := errors.New("boom")
	job := Job{Name: "fail", Inputs: 1, Outputs: 1, Kernel: func(in, out [][]int) (int, error) {
		if len(in[0]) > 0 && in[0][0] == 2 {
			return 0, boom
		}
		return 1, nil
	}}
	_, err = p.Map(context.Background(), partition.MustPlan(4, 4), job, [][]int{{0, 1, 2, 3}}, newPlanes(1, 4))
	assert.ErrorIs(t, err, boom)
}

func TestSequential_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := Job{Name: "noop", Inputs: 0, Outputs: 0, Kernel: func(in, out [][]int) (int, error) { return 0, nil }}
	_, err := Sequential{}.Map(ctx, partition.MustPlan(0, 1), job, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDistributed_PartitionMismatch(t *testing.T) {
	comms, err := collective.NewLocalWorld(1)
	require.NoError(t, err)
	d, err := NewDistributed(comms[0])
	require.NoError(t, err)
	defer d.Close()

	job := Job{Name: "noop", Inputs: 1, Outputs: 1, Kernel: func(in, out [][]int) (int, error) { return 0, nil }}
	_, err = d.Map(context.Background(), partition.MustPlan(4, 2), job, newPlanes(1, 4), newPlanes(1, 4))
	assert.Error(t, err)
	assert.Equal(t, 0, d.Rank())
}
