// Package background computes the temporal-mean background of a frame
// sequence.
//
// Each output sample is floor(sum/frameCount) of the corresponding input
// samples, per channel. The sum is order independent, which is what lets the
// strategies in package strategy split the work by pixel range and reorder
// frames freely.
package background
