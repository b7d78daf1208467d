// Package processing runs deep probes over a list of files.
package processing

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/report"
	"github.com/five82/deepprobe/internal/reporter"
	"github.com/five82/deepprobe/internal/util"
)

// ProbeFunc deep probes one file. rep receives the per-file events.
type ProbeFunc func(ctx context.Context, path string, rep reporter.Reporter) (*report.DeepProbeReport, error)

// Options control a batch run.
type Options struct {
	// Workers is the number of files probed at once.
	Workers int
	// OutputDir, when set, receives one report file per input.
	OutputDir string
	Format    report.Format
	Logger    *zap.Logger
}

// FileOutcome is the result of probing one file of a batch.
type FileOutcome struct {
	Path       string
	Report     *report.DeepProbeReport
	ReportPath string
	Duration   time.Duration
	// Err is set when the probe failed outright (not for unopenable files).
	Err error
}

// Opened reports whether the file produced a result.
func (o FileOutcome) Opened() bool {
	return o.Err == nil && o.Report != nil && o.Report.Result != nil
}

// ProbeFiles probes files with at most opts.Workers probes in flight.
// Outcomes are returned in input order. A failing file does not stop the
// batch; cancellation does.
func ProbeFiles(ctx context.Context, files []string, probeFile ProbeFunc, opts Options, rep reporter.Reporter) ([]FileOutcome, error) {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Format == "" {
		opts.Format = report.FormatJSON
	}
	workers := max(1, opts.Workers)
	workers = min(workers, max(1, len(files)))

	// Concurrent probes would interleave their detector output, so only a
	// single worker forwards per-file events.
	var fileRep reporter.Reporter = reporter.NullReporter{}
	if workers == 1 {
		fileRep = rep
	}

	batchStart := time.Now()
	if len(files) > 1 {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, util.GetFilename(f))
		}
		rep.BatchStarted(reporter.BatchStartInfo{
			TotalFiles: len(files),
			FileList:   names,
			OutputDir:  opts.OutputDir,
			Workers:    workers,
		})
	}

	if opts.OutputDir != "" {
		if err := util.EnsureDirectory(opts.OutputDir); err != nil {
			return nil, errors.NewIOError(fmt.Sprintf("cannot create output directory %s", opts.OutputDir), err)
		}
		if err := util.EnsureDirectoryWritable(opts.OutputDir); err != nil {
			return nil, errors.NewIOError("output directory is not usable", err)
		}
	}

	outcomes := make([]FileOutcome, len(files))
	var mu sync.Mutex
	started := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if len(files) > 1 {
				mu.Lock()
				started++
				current := started
				mu.Unlock()
				rep.FileProgress(reporter.FileProgressContext{
					CurrentFile: current,
					TotalFiles:  len(files),
					Filename:    util.GetFilename(path),
				})
			}

			start := time.Now()
			r, err := probeFile(gctx, path, fileRep)
			outcome := FileOutcome{Path: path, Report: r, Duration: time.Since(start), Err: err}
			if err != nil {
				if errors.IsCancelled(err) || gctx.Err() != nil {
					return err
				}
				log.Error("deep probe failed", zap.String("file", path), zap.Error(err))
				rep.Error(reporter.ReporterError{
					Title:      "Probe Error",
					Message:    fmt.Sprintf("Could not probe %s: %v", util.GetFilename(path), err),
					Context:    fmt.Sprintf("File: %s", path),
					Suggestion: "Check the deep probe check and the log file for details",
				})
			} else if opts.OutputDir != "" {
				out, werr := writeReport(r, path, opts.OutputDir, opts.Format)
				if werr != nil {
					outcome.Err = werr
					rep.Warning(fmt.Sprintf("Could not write report for %s: %v", util.GetFilename(path), werr))
				}
				outcome.ReportPath = out
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		rep.Warning(fmt.Sprintf("Batch cancelled: %v", err))
		return compact(outcomes), errors.NewCancelledError()
	}
	if ctx.Err() != nil {
		return compact(outcomes), errors.NewCancelledError()
	}

	summarize(outcomes, len(files), time.Since(batchStart), rep)
	return outcomes, nil
}

// compact drops the slots of files that never ran.
func compact(outcomes []FileOutcome) []FileOutcome {
	var done []FileOutcome
	for _, o := range outcomes {
		if o.Path != "" {
			done = append(done, o)
		}
	}
	return done
}

func summarize(outcomes []FileOutcome, total int, elapsed time.Duration, rep reporter.Reporter) {
	successful, noResult := 0, 0
	var fileResults []reporter.FileResult
	for _, o := range outcomes {
		results := 0
		if o.Opened() {
			successful++
			results = resultCount(o.Report.Result)
		} else if o.Err == nil {
			noResult++
		}
		fileResults = append(fileResults, reporter.FileResult{
			Filename: util.GetFilename(o.Path),
			Opened:   o.Opened(),
			Results:  results,
		})
	}

	switch {
	case total > 1:
		rep.BatchComplete(reporter.BatchSummary{
			SuccessfulCount: successful,
			NoResultCount:   noResult,
			TotalFiles:      total,
			TotalDuration:   elapsed,
			FileResults:     fileResults,
		})
	case successful == 1:
		rep.OperationComplete(fmt.Sprintf("Probed %s", util.GetFilename(outcomes[0].Path)))
	case noResult == 1:
		rep.Warning(fmt.Sprintf("%s could not be opened", util.GetFilename(outcomes[0].Path)))
	}
}

func resultCount(r *report.DeepProbeResult) int {
	n := 0
	for _, s := range r.Streams {
		n += s.ResultCount()
	}
	return n
}

// writeReport encodes r next to the other reports of the batch.
func writeReport(r *report.DeepProbeReport, inputPath, outputDir string, format report.Format) (string, error) {
	path := util.ReportPath(inputPath, outputDir, string(format))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := report.Encode(f, r, format); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
