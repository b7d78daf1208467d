package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// minFreeSpace is the free space below which CheckDiskSpace warns.
const minFreeSpace = 1 * GiB

// TempDir is a uniquely named directory removed by Cleanup.
type TempDir struct {
	path string
}

// Path returns the directory path.
func (d *TempDir) Path() string { return d.path }

// Cleanup removes the directory and everything in it.
func (d *TempDir) Cleanup() error { return os.RemoveAll(d.path) }

// EnsureDirectoryWritable checks that path is a directory the process can
// write to.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("%s is not writable: %w", path, err)
	}
	return nil
}

// CreateTempDir creates baseDir/<prefix>_<random>.
func CreateTempDir(baseDir, prefix string) (*TempDir, error) {
	name, err := tempName(prefix)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(baseDir, name)
	if err := os.Mkdir(path, 0700); err != nil {
		return nil, err
	}
	return &TempDir{path: path}, nil
}

func tempName(prefix string) (string, error) {
	suffix, err := generateRandomString(12)
	if err != nil {
		return "", err
	}
	return prefix + "_" + suffix, nil
}

// CleanupStaleTempFiles removes entries of dir named <prefix>_* that are
// older than maxAge, such as work directories left by a killed run. A
// missing dir is not an error.
func CleanupStaleTempFiles(dir, prefix string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	count := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix+"_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// GetAvailableSpace returns the free bytes of the filesystem holding path,
// or 0 if it cannot be determined.
func GetAvailableSpace(path string) uint64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	return st.Bavail * uint64(st.Bsize)
}

// CheckDiskSpace reports whether path has at least minFreeSpace available.
// logf, when set, receives a warning otherwise.
func CheckDiskSpace(path string, logf func(format string, args ...any)) bool {
	available := GetAvailableSpace(path)
	if available >= minFreeSpace {
		return true
	}
	if logf != nil {
		logf("low disk space in %s: %s available", path, FormatBytes(available))
	}
	return false
}

// generateRandomString returns n lowercase hex characters (n <= 32).
func generateRandomString(n int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	s := strings.ReplaceAll(id.String(), "-", "")
	if n > len(s) {
		return "", fmt.Errorf("random string length %d exceeds %d", n, len(s))
	}
	return s[:n], nil
}
