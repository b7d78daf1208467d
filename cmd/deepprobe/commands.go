package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/five82/deepprobe"
	"github.com/five82/deepprobe/internal/config"
	"github.com/five82/deepprobe/internal/discovery"
	"github.com/five82/deepprobe/internal/graph"
	"github.com/five82/deepprobe/internal/report"
	"github.com/five82/deepprobe/internal/reporter"
)

func newProbeCommand(ga *globalArgs) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "probe FILE",
		Short: "Summarize the container and streams of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, ga)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.prober.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return report.Encode(cmd.OutOrStdout(), result, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "Output format (json, yaml, msgpack, text)")
	return cmd
}

// deepArgs holds the parsed arguments for the deep command.
type deepArgs struct {
	inputPath    string
	outputDir    string
	checkPath    string
	preset       string
	format       string
	jsonProgress bool
	noProgress   bool
	eventsPath   string
}

func newDeepCommand(ga *globalArgs) *cobra.Command {
	var da deepArgs

	cmd := &cobra.Command{
		Use:   "deep -i PATH",
		Short: "Run detectors over a media file or a directory of media files",
		Long: `Run the detectors a check selects over a media file or a directory.

A single file prints its report to stdout unless --output is given. A
directory requires --output and writes one report per file there. A file
that cannot be opened yields a report with a null result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeep(cmd, ga, da)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&da.inputPath, "input", "i", "", "Input media file or directory containing media files")
	fl.StringVarP(&da.outputDir, "output", "o", "", "Directory receiving one report per file")
	fl.StringVarP(&da.checkPath, "check", "c", "", "Deep probe check (JSON, or YAML by extension)")
	fl.StringVarP(&da.preset, "preset", "p", "", "Check preset used without --check (quick, standard, full)")
	fl.StringVarP(&da.format, "format", "f", "", "Report format (json, yaml, msgpack, text)")
	fl.BoolVar(&da.jsonProgress, "json-progress", false, "Emit progress as NDJSON events (stdout with --output, stderr otherwise)")
	fl.BoolVar(&da.noProgress, "no-progress", false, "Hide the progress bar")
	fl.StringVar(&da.eventsPath, "events", "", "Also append NDJSON progress events to this file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runDeep(cmd *cobra.Command, ga *globalArgs, da deepArgs) error {
	inputPath, err := filepath.Abs(da.inputPath)
	if err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("input path does not exist: %s", inputPath)
	}
	if inputInfo.IsDir() && da.outputDir == "" {
		return fmt.Errorf("output directory is required for directory input (-o/--output)")
	}

	var c *deepprobe.Check
	if da.checkPath != "" {
		data, err := os.ReadFile(da.checkPath)
		if err != nil {
			return fmt.Errorf("failed to read check: %w", err)
		}
		if c, err = deepprobe.ParseCheck(da.checkPath, data); err != nil {
			return err
		}
	}

	var opts []deepprobe.Option
	if da.preset != "" {
		p, err := config.ParsePreset(da.preset)
		if err != nil {
			return err
		}
		opts = append(opts, deepprobe.WithPreset(p))
	}

	s, err := openSession(cmd, ga, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	format := s.cfg.ReportFormat
	if da.format != "" {
		if format, err = report.ParseFormat(da.format); err != nil {
			return err
		}
	}

	rep, closeEvents, err := newReporter(da, ga.verbose)
	if err != nil {
		return err
	}
	defer closeEvents()

	var files []string
	if inputInfo.IsDir() {
		found, err := discovery.FindMediaFilesWithLogging(inputPath, s.logger)
		if err != nil {
			return err
		}
		files = found.Files
	} else {
		files = []string{inputPath}
		s.logger.Info("processing single file", zap.String("file", inputPath))
	}

	if da.outputDir == "" {
		r, err := s.prober.Deep(cmd.Context(), inputPath, c, rep)
		if err != nil {
			return err
		}
		return report.Encode(cmd.OutOrStdout(), r, format)
	}

	outputDir, err := filepath.Abs(da.outputDir)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	batch, err := s.prober.DeepBatch(cmd.Context(), files, c, outputDir, format, rep)
	if err != nil {
		return err
	}
	if batch.FailedCount > 0 {
		return fmt.Errorf("%d of %d files failed", batch.FailedCount, batch.TotalFiles)
	}
	return nil
}

// newReporter builds the progress reporter. A report printed to stdout
// keeps every other output on stderr.
func newReporter(da deepArgs, verbose bool) (reporter.Reporter, func(), error) {
	var rep reporter.Reporter
	switch {
	case da.jsonProgress && da.outputDir != "":
		rep = reporter.NewJSONReporter()
	case da.jsonProgress:
		rep = reporter.NewJSONReporterWithWriter(os.Stderr)
	default:
		out := os.Stderr
		if da.outputDir != "" {
			out = os.Stdout
		}
		opts := []reporter.TerminalOption{
			reporter.WithWriters(out, os.Stderr),
			reporter.WithVerbose(verbose),
		}
		if da.noProgress {
			opts = append(opts, reporter.WithoutProgressBar())
		}
		rep = reporter.NewTerminalReporter(opts...)
	}

	if da.eventsPath == "" {
		return rep, func() {}, nil
	}
	f, err := os.OpenFile(da.eventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open events file: %w", err)
	}
	composite := reporter.NewCompositeReporter(rep, reporter.NewJSONReporterWithWriter(f))
	return composite, func() { _ = f.Close() }, nil
}

func newGraphCommand(ga *globalArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph ORDER",
		Short: "Execute an analysis graph and print its annotations as NDJSON",
		Long: `Execute an analysis graph described in JSON, or YAML by extension, and
print every annotation it produces as one JSON object per line, in
presentation order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read graph: %w", err)
			}
			order, err := parseOrder(args[0], data)
			if err != nil {
				return err
			}

			s, err := openSession(cmd, ga)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.prober.RunGraph(cmd.Context(), order, entryPrinter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			s.logger.Info("graph complete", zap.Int("annotations", n))
			return nil
		},
	}
	return cmd
}

func parseOrder(name string, data []byte) (*graph.Order, error) {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return graph.ParseYAML(data)
	default:
		return graph.Parse(data)
	}
}

func entryPrinter(w io.Writer) func(deepprobe.Entry) {
	enc := json.NewEncoder(w)
	return func(e deepprobe.Entry) {
		_ = enc.Encode(e)
	}
}
