// Package logs reads coursekit's dated log files for "coursekit logs".
//
// Tail returns the last N lines of a file, optionally filtered by a
// substring such as a project id, and reports the byte offset reached so a
// follow loop can resume from it. Memory use is bounded by the line limit.
package logs
