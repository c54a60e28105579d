// Package pipeline runs background subtraction over a frame sequence.
//
// A Runner walks every participant through the same states:
//
//	Init -> DimensionsKnown -> Accumulated -> BackgroundReady -> MaskReady -> Persisted -> Done
//
// Only the coordinator loads frames and persists results. It broadcasts a
// run header (dimensions, frame count, threshold and run ID) so every
// participant plans the same partition; if loading fails it broadcasts an
// abort header instead so other participants return an error rather than
// wait on collectives that will never come. Timing covers the compute
// section between two barriers and excludes loading and saving.
package pipeline
