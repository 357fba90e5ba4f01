// Package archive exports projects to portable zip files and imports them
// back as new projects.
//
// An archive holds project.json (the project header and content graph) plus
// media/{id}.bin and media/{id}.json for every stored payload the graph
// references. Remote videos travel inside the graph only.
//
// Import validates the whole archive before touching disk, builds the new
// project in a staging directory, and moves it into the projects directory
// only once every payload and the record are written. Replace is an import
// followed by deletion of the old project, so a failed replace leaves the
// old project untouched.
package archive
