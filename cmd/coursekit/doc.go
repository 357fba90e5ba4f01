// Command coursekit manages course projects on disk: their content
// records, stored media payloads, and portable zip archives.
//
// Every subcommand loads the TOML configuration first (see "coursekit
// config init"), opens the project catalog, and logs to a dated file under
// the configured log directory. Output is a rounded table by default and
// indented JSON with --json.
package main
