// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// InitializationSummary describes the current file before probing.
type InitializationSummary struct {
	InputFile    string
	Container    string
	Duration     string
	VideoStreams int
	AudioStreams int
	Detectors    []string
}

// DetectorStart announces a detector pass.
type DetectorStart struct {
	Name    string
	Streams []int
}

// ProgressSnapshot contains progress of the running detector pass.
type ProgressSnapshot struct {
	Detector     string
	CurrentFrame uint64
	Percent      float32
	Speed        float32
	FPS          float32
	ETA          time.Duration
}

// DetectorSummary contains the outcome of one detector pass.
type DetectorSummary struct {
	Name     string
	Results  int
	Duration time.Duration
	// Err is set when the pass contributed nothing because it failed.
	Err string
}

// ProbeOutcome contains the outcome of one deep probe.
type ProbeOutcome struct {
	InputFile string
	RunID     string
	// Opened is false when the file could not be opened and no result exists.
	Opened    bool
	Cached    bool
	Streams   int
	Results   int
	TotalTime time.Duration
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// BatchStartInfo contains batch start metadata.
type BatchStartInfo struct {
	TotalFiles int
	FileList   []string
	OutputDir  string
	Workers    int
}

// FileProgressContext contains current file index within a batch.
type FileProgressContext struct {
	CurrentFile int
	TotalFiles  int
	Filename    string
}

// BatchSummary contains batch completion information.
type BatchSummary struct {
	SuccessfulCount int
	NoResultCount   int
	TotalFiles      int
	TotalDuration   time.Duration
	FileResults     []FileResult
}

// FileResult contains the per-file outcome.
type FileResult struct {
	Filename string
	Opened   bool
	Results  int
}

// StageProgress represents a generic stage update.
type StageProgress struct {
	Stage   string
	Percent float32
	Message string
	ETA     *time.Duration
}
