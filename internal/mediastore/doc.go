// Package mediastore provides durable per-project storage for media payloads.
//
// Each payload is written as {id}.bin through a temp file and rename, with a
// {id}.json sidecar recording kind, page, MIME type, size, and SHA-256. Writes
// are last-writer-wins, deletes are idempotent, and I/O failures are returned
// wrapped in media.ErrIO without retrying. Has only stats the payload, so the
// reconciler can probe existence without reading bytes.
package mediastore
