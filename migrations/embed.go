package migrations

import (
	"embed"
	"io/fs"
)

// Files holds the SQL migrations, applied in file name order
//
//go:embed *.sql
var Files embed.FS

// GetFS returns the migrations filesystem
func GetFS() fs.FS {
	return Files
}
