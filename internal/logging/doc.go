// Package logging builds the slog loggers used by coursekit.
//
// Console output puts the component, short project id and media id in front
// of the message; JSON output uses ts/level/msg keys. Context helpers carry
// the project, operation and correlation id of a command so any component can
// tag its lines without threading them through every call.
package logging
