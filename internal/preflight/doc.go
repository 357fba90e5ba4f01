// Package preflight provides readiness checks for the filesystem paths and
// the catalog database that coursekit depends on.
//
// The CLI "coursekit doctor" command runs RunAll and renders each Result.
// Individual checks are usable on their own; none of them mutate state.
package preflight
