// Package catalog persists the registry of known projects in SQLite.
//
// Each row records where a project lives on disk and whether it is ready or
// still being staged by an archive import. Staged rows are hidden from the
// default listing so a half-finished import never shows up as a project.
// Writes retry on SQLITE_BUSY so the CLI and a long-running import can share
// the database.
package catalog
