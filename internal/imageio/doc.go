// Package imageio loads frame sequences and persists result images.
//
// Frames are decoded with the standard library PNG, JPEG and GIF decoders
// plus the golang.org/x/image BMP, TIFF and WebP decoders, and converted to
// unpremultiplied 8-bit RGB samples. Outputs are encoded by file extension.
package imageio
