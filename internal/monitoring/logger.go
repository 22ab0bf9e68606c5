// Package monitoring holds the diagnostic logger shared by the dataset
// pipeline packages.
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

// Warnf logs a recoverable condition through Logf with a "warning: " prefix.
// Warnings mark degraded behaviour the operator should look at (for example
// a label counter table that could not be seeded) but never stop a run.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}
