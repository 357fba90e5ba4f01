// Package mediaid implements the positional identifier scheme for per-page
// singleton media (narration audio and captions) and the checks that keep one
// page's asset from being shown on another.
package mediaid
