// Package mediacache keeps the in-memory index of a project's media and the
// transient handles (blob URLs) derived from stored payloads.
//
// The cache moves through Unloaded, Loading, and Loaded. A Loader returned by
// BeginLoad populates the index; Reset drops every entry, revokes every handle,
// and returns to Unloaded in a single critical section so no load marker can
// outlive the data it described. Handles are created lazily, reused while the
// data generation is unchanged, and revoked before a delete reaches the store.
//
// QueryByPage returns raw entries. Consumers should go through the reconcile
// package, which drops entries whose payload has gone missing.
package mediacache
