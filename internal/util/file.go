package util

import (
	"os"
	"path/filepath"
	"strings"
)

// MediaExtensions is the list of file extensions probed in directory mode.
var MediaExtensions = map[string]bool{
	".mxf":  true,
	".mkv":  true,
	".mov":  true,
	".mp4":  true,
	".m4v":  true,
	".ts":   true,
	".m2ts": true,
	".mpg":  true,
	".mpeg": true,
	".avi":  true,
	".webm": true,
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
}

// IsMediaFile checks if the given path is a regular file with a media extension.
func IsMediaFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	ext := strings.ToLower(filepath.Ext(path))
	return MediaExtensions[ext]
}

// GetFilename returns the filename from a path.
func GetFilename(path string) string {
	return filepath.Base(path)
}

// GetFileStem returns the filename without extension.
func GetFileStem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// EnsureDirectory creates a directory if it doesn't exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// ReportPath returns where the report of inputPath is written inside
// outputDir: the input's stem with the report format as extension.
func ReportPath(inputPath, outputDir, ext string) string {
	return filepath.Join(outputDir, GetFileStem(inputPath)+"."+strings.TrimPrefix(ext, "."))
}
