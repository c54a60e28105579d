package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/framebg/internal/background"
	"github.com/banshee-data/framebg/internal/foreground"
	"github.com/banshee-data/framebg/internal/frame"
	"github.com/banshee-data/framebg/internal/monitoring"
	"github.com/banshee-data/framebg/internal/partition"
	"github.com/banshee-data/framebg/internal/strategy"
	"github.com/banshee-data/framebg/internal/timeutil"
	"github.com/google/uuid"
)

var logs = monitoring.NewStreams("[pipeline] ")

var (
	// ErrPrecondition marks failures detected before any work is
	// distributed: bad configuration, missing or undecodable frames, or
	// frames of differing sizes.
	ErrPrecondition = errors.New("pipeline: precondition failed")

	// ErrAborted is returned by non-coordinator participants when the
	// coordinator abandons the run before distribution starts.
	ErrAborted = errors.New("pipeline: run aborted by coordinator")
)

// FrameSource provides the input sequence. imageio.Codec implements it.
type FrameSource interface {
	FrameIdentifiers(count int) []string
	LoadSequence(ids []string) (frame.Sequence, error)
}

// ResultSink persists the outputs. imageio.Codec implements it.
type ResultSink interface {
	SaveImage(g *frame.Grid, name string) error
	SaveGrayscale(samples []int, width, height int, name string) error
}

// Config holds per-run parameters. Only the coordinator's values matter;
// they are broadcast to the other participants.
type Config struct {
	FrameCount     int
	Threshold      int
	BackgroundName string
	MaskName       string
}

// StageTiming is the time spent reaching a state from the previous one.
type StageTiming struct {
	Stage    State
	Duration time.Duration
}

// Result describes a finished run. Images are set only on the coordinator
// and only when the runner keeps them.
type Result struct {
	RunID       string
	Strategy    string
	Coordinator bool
	Workers     int
	Width       int
	Height      int
	FrameCount  int
	Threshold   int
	Partition   partition.Partition

	Background *frame.Grid
	Mask       *frame.Mask
	Reference  *frame.Grid

	// Foreground is the number of mask pixels set. On non-coordinator
	// participants it covers only the local range.
	Foreground int

	// Elapsed is the compute time between the start and end barriers.
	Elapsed      time.Duration
	StageTimings []StageTiming
}

// Runner drives one participant of a run.
type Runner struct {
	Strategy strategy.Strategy

	// Frames and Sink are required on the coordinator and ignored elsewhere.
	Frames FrameSource
	Sink   ResultSink

	Clock  timeutil.Clock
	Config Config

	// KeepImages retains the background, mask and reference frame in the
	// Result instead of releasing them once persisted.
	KeepImages bool

	// OnState, if set, is called after every transition.
	OnState func(State)
}

// header layout: status, width, height, frame count, threshold, run ID bytes.
const (
	hdrStatus = iota
	hdrWidth
	hdrHeight
	hdrFrames
	hdrThreshold
	hdrID
	hdrLen = hdrID + 16
)

type run struct {
	r      *Runner
	clock  timeutil.Clock
	mark   time.Time
	res    *Result
	seq    frame.Sequence
	images bool
}

func (rn *run) enter(s State) {
	now := rn.clock.Now()
	rn.res.StageTimings = append(rn.res.StageTimings, StageTiming{Stage: s, Duration: now.Sub(rn.mark)})
	rn.mark = now
	logs.Tracef("run %s: %s", rn.res.RunID, s)
	if rn.r.OnState != nil {
		rn.r.OnState(s)
	}
}

// Run executes the run. Every participant must call Run with a Strategy
// from the same world.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.Strategy == nil {
		return nil, fmt.Errorf("%w: no strategy", ErrPrecondition)
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rn := &run{r: r, clock: clock, mark: clock.Now(), res: &Result{
		Strategy:    r.Strategy.Name(),
		Coordinator: r.Strategy.Coordinator(),
		Workers:     r.Strategy.Workers(),
	}}
	defer rn.release()

	if err := rn.start(ctx); err != nil {
		return nil, err
	}
	if err := rn.compute(ctx); err != nil {
		logs.Opsf("run %s failed: %v", rn.res.RunID, err)
		return nil, err
	}
	if err := rn.persist(); err != nil {
		logs.Opsf("run %s failed: %v", rn.res.RunID, err)
		return nil, err
	}
	rn.finish()
	return rn.res, nil
}

// start loads frames on the coordinator and shares the run header.
func (rn *run) start(ctx context.Context) error {
	r := rn.r
	hdr := make([]int, hdrLen)
	var loadErr error
	if r.Strategy.Coordinator() {
		loadErr = rn.load()
		if loadErr == nil {
			w, h := rn.seq.Dimensions()
			id := uuid.New()
			hdr[hdrStatus], hdr[hdrWidth], hdr[hdrHeight] = 1, w, h
			hdr[hdrFrames], hdr[hdrThreshold] = len(rn.seq), r.Config.Threshold
			for i, b := range id {
				hdr[hdrID+i] = int(b)
			}
		}
	}

	if err := r.Strategy.Broadcast(ctx, hdr); err != nil {
		if loadErr != nil {
			return loadErr
		}
		return fmt.Errorf("pipeline: broadcast run header: %w", err)
	}
	if loadErr != nil {
		logs.Opsf("aborting run: %v", loadErr)
		return loadErr
	}
	if hdr[hdrStatus] != 1 {
		return ErrAborted
	}
	if hdr[hdrWidth] < 1 || hdr[hdrHeight] < 1 || hdr[hdrFrames] < 1 || hdr[hdrThreshold] < 0 {
		return fmt.Errorf("%w: invalid run header %v", ErrPrecondition, hdr[:hdrID])
	}

	var id uuid.UUID
	for i := range id {
		id[i] = byte(hdr[hdrID+i])
	}
	rn.res.RunID = id.String()
	rn.res.Width, rn.res.Height = hdr[hdrWidth], hdr[hdrHeight]
	rn.res.FrameCount, rn.res.Threshold = hdr[hdrFrames], hdr[hdrThreshold]

	part, err := partition.Plan(rn.res.Width*rn.res.Height, r.Strategy.Workers())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	rn.res.Partition = part
	rn.enter(StateDimensionsKnown)
	if rn.res.Coordinator {
		logs.Opsf("run %s: %s strategy, %d workers, %d frames of %dx%d, threshold %d",
			rn.res.RunID, rn.res.Strategy, rn.res.Workers, rn.res.FrameCount, rn.res.Width, rn.res.Height, rn.res.Threshold)
		logs.Diagf("run %s: partition counts=%v offsets=%v", rn.res.RunID, part.Counts, part.Offsets)
	}
	return nil
}

// load runs on the coordinator before anything is distributed.
func (rn *run) load() error {
	r := rn.r
	switch {
	case r.Config.FrameCount < 1:
		return fmt.Errorf("%w: frame count must be at least 1, got %d", ErrPrecondition, r.Config.FrameCount)
	case r.Config.Threshold < 0:
		return fmt.Errorf("%w: threshold must be non-negative, got %d", ErrPrecondition, r.Config.Threshold)
	case r.Frames == nil:
		return fmt.Errorf("%w: coordinator has no frame source", ErrPrecondition)
	case r.Sink == nil:
		return fmt.Errorf("%w: coordinator has no result sink", ErrPrecondition)
	}

	ids := r.Frames.FrameIdentifiers(r.Config.FrameCount)
	if len(ids) != r.Config.FrameCount {
		return fmt.Errorf("%w: frame source listed %d of %d frames", ErrPrecondition, len(ids), r.Config.FrameCount)
	}
	seq, err := r.Frames.LoadSequence(ids)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	if err := seq.Validate(); err != nil {
		seq.Release()
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	rn.seq = seq
	return nil
}

func planes(ch [frame.NumChannels][]int) [][]int {
	return [][]int{ch[frame.Red], ch[frame.Green], ch[frame.Blue]}
}

// compute runs both mapped jobs between the timing barriers.
func (rn *run) compute(ctx context.Context) error {
	r, res := rn.r, rn.res
	coord := res.Coordinator

	if err := r.Strategy.Barrier(ctx); err != nil {
		return fmt.Errorf("pipeline: start barrier: %w", err)
	}
	start := rn.clock.Now()

	var in, out [][]int
	if coord {
		bg, err := frame.NewGrid(res.Width, res.Height)
		if err != nil {
			return err
		}
		res.Background = bg
		in, out = rn.seq.Planes(), planes(bg.Channels())
	}
	acc := strategy.Job{
		Name:    "accumulate",
		Inputs:  res.FrameCount * frame.NumChannels,
		Outputs: frame.NumChannels,
		Kernel:  background.Kernel(res.FrameCount),
	}
	if _, err := r.Strategy.Map(ctx, res.Partition, acc, in, out); err != nil {
		return fmt.Errorf("pipeline: accumulate: %w", err)
	}
	rn.enter(StateAccumulated)

	if coord {
		res.Background.Clamp()
		// Only the reference frame is needed from here on.
		res.Reference = rn.seq.Reference()
		for _, g := range rn.seq[:len(rn.seq)-1] {
			g.Release()
		}
		rn.seq = nil
	}
	rn.enter(StateBackgroundReady)

	in, out = nil, nil
	if coord {
		m, err := frame.NewMask(res.Width, res.Height)
		if err != nil {
			return err
		}
		res.Mask = m
		in = append(planes(res.Background.Channels()), planes(res.Reference.Channels())...)
		out = [][]int{m.Values}
	}
	mj := strategy.Job{
		Name:    "mask",
		Inputs:  2 * frame.NumChannels,
		Outputs: 1,
		Kernel:  foreground.Kernel(res.Threshold),
	}
	n, err := r.Strategy.Map(ctx, res.Partition, mj, in, out)
	if err != nil {
		return fmt.Errorf("pipeline: mask: %w", err)
	}
	res.Foreground = n

	if err := r.Strategy.Barrier(ctx); err != nil {
		return fmt.Errorf("pipeline: end barrier: %w", err)
	}
	res.Elapsed = rn.clock.Since(start)
	if coord {
		res.Mask.Clamp()
	}
	rn.enter(StateMaskReady)
	return nil
}

func (rn *run) persist() error {
	r, res := rn.r, rn.res
	if res.Coordinator {
		if err := r.Sink.SaveImage(res.Background, r.Config.BackgroundName); err != nil {
			return fmt.Errorf("pipeline: save background: %w", err)
		}
		if err := r.Sink.SaveGrayscale(res.Mask.Values, res.Width, res.Height, r.Config.MaskName); err != nil {
			return fmt.Errorf("pipeline: save mask: %w", err)
		}
	}
	rn.enter(StatePersisted)
	return nil
}

func (rn *run) finish() {
	res := rn.res
	rn.images = rn.r.KeepImages
	if res.Coordinator {
		logs.Opsf("run %s: done in %s, %d of %d pixels foreground",
			res.RunID, res.Elapsed, res.Foreground, res.Width*res.Height)
	}
	rn.enter(StateDone)
}

// release frees every buffer the caller did not ask to keep.
func (rn *run) release() {
	rn.seq.Release()
	if rn.images {
		return
	}
	res := rn.res
	if res.Background != nil {
		res.Background.Release()
		res.Background = nil
	}
	if res.Mask != nil {
		res.Mask.Release()
		res.Mask = nil
	}
	if res.Reference != nil {
		res.Reference.Release()
		res.Reference = nil
	}
}
