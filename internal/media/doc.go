// Package media defines the asset data model shared across coursekit: the
// closed Kind enum, page references, kind-specific sources, descriptors, and
// the error taxonomy used by the store, cache, reconciler, and archiver.
package media
