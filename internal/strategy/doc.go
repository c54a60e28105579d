// Package strategy maps range kernels over a pixel partition.
//
// A Strategy is the only thing that differs between the sequential,
// shared-memory and distributed runs. The orchestrator hands every
// strategy the same Partition, Job and full-size buffers, and each
// strategy guarantees that the kernel sees exactly one partition range of
// every input plane and writes exactly that range of every output plane.
//
//   - Sequential runs the ranges one after another in the caller's goroutine.
//   - Parallel runs one goroutine per range over shared buffers. The ranges are
//     disjoint, so no locking is needed; Map returns only after every
//     goroutine has finished.
//   - Distributed scatters each input plane from the coordinator, runs the
//     kernel on the local slice, gathers each output plane back and sums
//     the kernel tallies with a reduction.
package strategy
