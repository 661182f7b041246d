// Package missions embeds the built-in regression missions.
package missions

import (
	"embed"
	"io/fs"

	"coach-qa/internal/catalog"
)

//go:embed *.yaml
var files embed.FS

// FS exposes the embedded mission documents.
func FS() fs.FS { return files }

// Load parses the built-in missions into a catalog.
func Load() (*catalog.Catalog, error) {
	return catalog.LoadFS(files, ".")
}
