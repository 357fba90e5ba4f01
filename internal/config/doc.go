// Package config loads, normalizes, and validates coursekit configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// COURSEKIT_PROJECTS_DIR. The Config type centralizes the project storage,
// archive, backup, and logging knobs so every CLI command discovers them in
// one pass.
package config
