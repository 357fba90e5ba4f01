// Package reconcile is the single place that decides whether a cached media
// reference is still good. It filters cache query results against the media
// store, repopulates the cache from a project's content graph when the
// project is opened, and repairs stored page labels derived from positional ids.
package reconcile
