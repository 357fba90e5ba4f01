// Package project stores course projects on disk and tracks them in the
// catalog.
//
// A project lives under {projects_dir}/{id}: project.json holds the record
// and its content graph, media/ holds the payload store, and backups/ holds
// timestamped copies of previous records. Saves copy the current record to
// backups/ before atomically replacing it, so a crash mid-save leaves either
// the old or the new record plus a recoverable backup.
//
// Lock files live in {projects_dir}/.locks so they survive project deletion
// and archive replacement.
package project
