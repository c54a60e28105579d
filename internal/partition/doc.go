// Package partition divides a flat pixel index space into contiguous,
// non-overlapping ranges, one per worker.
//
// The same Partition is used to scatter source channels and to gather
// result channels, so every participant must derive it from the same
// (total, workers) pair. Plan is pure and deterministic.
package partition
