// Package frame owns the pixel buffers the rest of framebg operates on.
//
// A Grid stores three channel planes of Width×Height int samples in
// row-major order (index = row*Width + column). Samples are nominally in
// [0,255]; Clamp is applied before anything leaves the process.
// A Sequence is an ordered set of equally sized grids whose last element is
// the reference frame used for masking.
package frame
