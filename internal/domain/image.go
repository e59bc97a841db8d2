package domain

import (
	"path/filepath"
	"strings"
)

// allowedImageExts is the closed set of accepted upload extensions.
var allowedImageExts = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
}

// ImageExt extracts the lowercase extension of a filename, without the dot.
// Returns "" when the filename has no extension.
func ImageExt(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return strings.ToLower(ext)
}

// AllowedImageFile reports whether the filename carries an accepted image
// extension (case-insensitive).
func AllowedImageFile(filename string) bool {
	_, ok := allowedImageExts[ImageExt(filename)]
	return ok
}
