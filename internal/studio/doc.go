// Package studio runs an editing session on one open project.
//
// A Session owns the project lock, the media cache and the reconciler for
// its project. Opening a session populates the cache from the project's
// content graph; every media change goes through the cache so handles are
// revoked before payloads change, and the graph is saved after each change.
package studio
