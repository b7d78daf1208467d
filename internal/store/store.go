// Package store caches deep probe reports in SQLite, keyed by the file's
// path, size and modification time and by the check that produced them.
package store

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/five82/deepprobe/internal/check"
	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/report"
)

// MemoryPath opens a private in-memory cache.
const MemoryPath = ":memory:"

// CachedReport is one stored report.
type CachedReport struct {
	ID        uint   `gorm:"primaryKey"`
	Path      string `gorm:"uniqueIndex:idx_report_key;not null"`
	CheckHash string `gorm:"uniqueIndex:idx_report_key;size:64;not null"`
	Size      int64  `gorm:"not null"`
	ModTime   int64  `gorm:"not null"`
	RunID     string `gorm:"size:36"`
	Report    []byte `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (CachedReport) TableName() string { return "deep_probe_reports" }

// Store is a report cache.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (and migrates) the cache database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.NewIOError(fmt.Sprintf("failed to open report cache %s", path), err)
	}
	// SQLite has a single writer, and every pooled connection to
	// :memory: would get its own empty database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.NewIOError("failed to open report cache", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return New(db, log)
}

// New wraps an open database.
func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&CachedReport{}); err != nil {
		return nil, errors.NewIOError("failed to migrate report cache", err)
	}
	return &Store{db: db, logger: log}, nil
}

// fingerprint identifies the current content of a file without reading it.
func fingerprint(path string) (size, modTime int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	return info.Size(), info.ModTime().UnixNano(), nil
}

// Lookup returns the cached report of path for c when the file is unchanged
// since it was stored.
func (s *Store) Lookup(path string, c *check.DeepProbeCheck) (*report.DeepProbeReport, bool) {
	size, modTime, err := fingerprint(path)
	if err != nil {
		return nil, false
	}

	var row CachedReport
	err = s.db.Where("path = ? AND check_hash = ?", path, c.Hash()).First(&row).Error
	if err != nil {
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("report cache lookup failed", zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	if row.Size != size || row.ModTime != modTime {
		s.logger.Debug("cached report is stale", zap.String("path", path))
		return nil, false
	}

	r, err := report.DecodeDeepProbe(row.Report, report.FormatMsgpack)
	if err != nil {
		s.logger.Warn("discarding unreadable cached report", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	r.Filename = path
	return r, true
}

// Store saves r as the report of path for c, replacing an older one. Reports
// without a result are not cached.
func (s *Store) Store(path string, c *check.DeepProbeCheck, r *report.DeepProbeReport) error {
	if r == nil || r.Result == nil {
		return nil
	}
	size, modTime, err := fingerprint(path)
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("cannot stat %s", path), err)
	}

	var buf bytes.Buffer
	if err := report.Encode(&buf, r, report.FormatMsgpack); err != nil {
		return errors.NewIOError("failed to encode report", err)
	}

	row := CachedReport{
		Path:      path,
		CheckHash: c.Hash(),
		Size:      size,
		ModTime:   modTime,
		RunID:     r.RunID,
		Report:    buf.Bytes(),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}, {Name: "check_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"size", "mod_time", "run_id", "report", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.NewIOError("failed to store report", err)
	}
	return nil
}

// Prune removes reports not refreshed within maxAge.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	res := s.db.Where("updated_at < ?", time.Now().Add(-maxAge)).Delete(&CachedReport{})
	if res.Error != nil {
		return 0, errors.NewIOError("failed to prune report cache", res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the number of stored reports.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.Model(&CachedReport{}).Count(&n).Error
	return n, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
