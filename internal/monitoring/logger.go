// Package monitoring holds the process-wide logging seams for framebg.
//
// Logf is the catch-all diagnostic logger. Layer packages log through a
// Streams value with their own prefix; the three streams (ops, diag, trace)
// are routed to writers configured once by the binary via SetLogWriters.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
