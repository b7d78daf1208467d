// Package discovery finds media files to probe in batch mode.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/util"
)

// Result contains the files found in a directory.
type Result struct {
	Files        []string
	SkippedCount int
}

// FindMediaFiles finds media files in the given directory, non-recursively.
// Hidden files are ignored. Returns files sorted alphabetically by filename.
func FindMediaFiles(inputDir string) (*Result, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, fmt.Errorf("directory does not exist: %s", inputDir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", inputDir)
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", inputDir, err)
	}

	result := &Result{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		fullPath := filepath.Join(inputDir, name)
		if util.IsMediaFile(fullPath) {
			result.Files = append(result.Files, fullPath)
		} else {
			result.SkippedCount++
		}
	}

	if len(result.Files) == 0 {
		return nil, errors.NewNoFilesFoundError(inputDir)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(result.Files[i])) < strings.ToLower(filepath.Base(result.Files[j]))
	})

	return result, nil
}

// FindMediaFilesWithLogging finds media files and logs the first few.
func FindMediaFilesWithLogging(inputDir string, logger *zap.Logger) (*Result, error) {
	result, err := FindMediaFiles(inputDir)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logDiscoveredFiles(result, logger)
	}
	return result, nil
}

// logDiscoveredFiles logs the first 5 discovered files plus a count.
func logDiscoveredFiles(result *Result, logger *zap.Logger) {
	logger.Info("found media files",
		zap.Int("count", len(result.Files)),
		zap.Int("skipped", result.SkippedCount))

	maxToLog := min(5, len(result.Files))
	for i := range maxToLog {
		logger.Debug("discovered", zap.String("file", filepath.Base(result.Files[i])))
	}

	if len(result.Files) > 5 {
		logger.Debug("more files discovered", zap.Int("remaining", len(result.Files)-5))
	}
}
