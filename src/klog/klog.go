// Package klog is the kernel's logging surface: a thin wrapper over
// fmt.Printf matching biscuit's terse printf-debug style rather than a
// structured logging library — there is no console collaborator in
// scope to structure output for (§1: device drivers are out of
// scope), just the same bare stdout biscuit itself writes to.
package klog

import "fmt"

// Debug gates verbose tracing; off by default, the way biscuit's
// per-subsystem bool debug flags default off.
var Debug = false

// Printf writes an unconditional kernel log line.
func Printf(format string, args ...interface{}) {
	fmt.Printf("klog: "+format, args...)
}

// Debugf writes a log line only when Debug is set.
func Debugf(format string, args ...interface{}) {
	if !Debug {
		return
	}
	fmt.Printf("klog(debug): "+format, args...)
}

// Warnf flags a recoverable anomaly.
func Warnf(format string, args ...interface{}) {
	fmt.Printf("klog(warn): "+format, args...)
}
