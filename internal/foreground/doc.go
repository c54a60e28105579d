// Package foreground derives a binary foreground mask by comparing the
// grayscale luminance of a background image against a reference frame.
package foreground
