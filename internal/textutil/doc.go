// Package textutil turns user-supplied names into safe filesystem tokens.
//
// SanitizeFileName keeps a name readable while removing characters that are
// unsafe in paths. Slug folds a project title into a lowercase ASCII token
// suitable for archive file names.
package textutil
