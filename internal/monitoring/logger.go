// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import "log"

// Logger is a printf-style log function.
type Logger func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced with SetLogger to redirect or mute output.
var Logf Logger = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f Logger) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes lines with "[name] " and writes
// through whatever Logf is at call time.
func Component(name string) Logger {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
