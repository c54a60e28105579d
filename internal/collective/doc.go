// Package collective provides coordinator-rooted collective operations
// (broadcast, variable-count scatter and gather, element-wise sum
// reduction, barrier) over ordered point-to-point links.
//
// Every rank must issue the same collective calls in the same order. A
// rank that skips or reorders a call leaves its peers blocked until their
// context is cancelled. The coordinator is always rank 0 and is the only
// rank that reads the full-size send buffers or writes the full-size
// receive buffers.
//
// Links can be in-process channels (NewLocalWorld) or gRPC streams
// (package grpclink).
package collective
