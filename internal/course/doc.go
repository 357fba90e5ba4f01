// Package course models the declarative content graph of a course (welcome
// page, learning objectives, topics) and the media references each page holds.
package course
