package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/five82/deepprobe/internal/util"
	"github.com/schollz/progressbar/v3"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	out        io.Writer
	errOut     io.Writer
	progress   *progressbar.ProgressBar
	showBar    bool
	maxPercent float32
	lastStage  string
	verbose    bool
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	magenta    *color.Color
	bold       *color.Color
	faint      *color.Color
}

// TerminalOption configures a TerminalReporter.
type TerminalOption func(*TerminalReporter)

// WithWriters redirects regular and error output.
func WithWriters(out, errOut io.Writer) TerminalOption {
	return func(r *TerminalReporter) {
		r.out = out
		r.errOut = errOut
	}
}

// WithoutProgressBar disables the detector progress bar, for batch runs
// where several files are probed at once.
func WithoutProgressBar() TerminalOption {
	return func(r *TerminalReporter) { r.showBar = false }
}

// WithVerbose prints Verbose messages.
func WithVerbose(verbose bool) TerminalOption {
	return func(r *TerminalReporter) { r.verbose = verbose }
}

// NewTerminalReporter creates a new terminal reporter.
func NewTerminalReporter(opts ...TerminalOption) *TerminalReporter {
	r := &TerminalReporter{
		out:     os.Stdout,
		errOut:  os.Stderr,
		showBar: true,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		faint:   color.New(color.Faint),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) heading(title string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, title)
}

func (r *TerminalReporter) Initialization(summary InitializationSummary) {
	r.heading("MEDIA")
	r.printLabel(10, "File:", summary.InputFile)
	r.printLabel(10, "Container:", summary.Container)
	r.printLabel(10, "Duration:", summary.Duration)
	r.printLabel(10, "Streams:", fmt.Sprintf("%d video, %d audio", summary.VideoStreams, summary.AudioStreams))
	if len(summary.Detectors) > 0 {
		r.printLabel(10, "Checks:", strings.Join(summary.Detectors, ", "))
	}
}

func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.mu.Lock()
	if r.lastStage != update.Stage {
		r.mu.Unlock()
		r.heading(strings.ToUpper(update.Stage))
		r.mu.Lock()
		r.lastStage = update.Stage
	}
	r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.magenta.Sprint("›"), update.Message)
}

func (r *TerminalReporter) DetectorStarted(start DetectorStart) {
	r.finishProgress()
	r.StageProgress(StageProgress{
		Stage:   "detection",
		Message: fmt.Sprintf("%s on streams %s", start.Name, joinInts(start.Streams)),
	})
	if !r.showBar {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions64(
		100,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(r.errOut),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Analyzing [",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) DetectorProgress(progress ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}

	clamped := min(max(progress.Percent, 0), 100)
	if clamped >= r.maxPercent {
		r.maxPercent = clamped
		_ = r.progress.Set64(int64(clamped))
	}

	desc := fmt.Sprintf("speed %.1fx, fps %.1f, eta %s",
		progress.Speed, progress.FPS, util.FormatDurationFromSecs(int64(progress.ETA.Seconds())))
	r.progress.Describe(desc)
}

func (r *TerminalReporter) DetectorComplete(summary DetectorSummary) {
	r.finishProgress()

	elapsed := util.FormatDurationFromSecs(int64(summary.Duration.Seconds()))
	if summary.Err != "" {
		_, _ = fmt.Fprintf(r.out, "  %s %s: %s (%s)\n", r.red.Sprint("✗"), summary.Name, summary.Err, elapsed)
		return
	}
	_, _ = fmt.Fprintf(r.out, "  %s %s: %d results (%s)\n", r.green.Sprint("✓"), summary.Name, summary.Results, elapsed)
}

func (r *TerminalReporter) ProbeComplete(outcome ProbeOutcome) {
	r.finishProgress()

	r.heading("RESULTS")
	if !outcome.Opened {
		r.printLabel(8, "File:", outcome.InputFile)
		r.printLabel(8, "Result:", r.yellow.Sprint("none (file could not be opened)"))
		return
	}
	r.printLabel(8, "File:", r.bold.Sprint(outcome.InputFile))
	r.printLabel(8, "Run:", outcome.RunID)
	r.printLabel(8, "Streams:", fmt.Sprint(outcome.Streams))
	r.printLabel(8, "Results:", fmt.Sprint(outcome.Results))
	elapsed := util.FormatDurationFromSecs(int64(outcome.TotalTime.Seconds()))
	if outcome.Cached {
		elapsed += " " + r.faint.Sprint("(cached)")
	}
	r.printLabel(8, "Time:", elapsed)
}

func (r *TerminalReporter) Warning(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.yellow.Fprintf(r.out, "WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	_, _ = fmt.Fprintln(r.errOut)
	_, _ = r.red.Fprintf(r.errOut, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(r.errOut, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.green.Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) BatchStarted(info BatchStartInfo) {
	r.heading("BATCH")
	_, _ = fmt.Fprintf(r.out, "  Probing %d files with %d workers", info.TotalFiles, info.Workers)
	if info.OutputDir != "" {
		_, _ = fmt.Fprintf(r.out, " -> %s", r.bold.Sprint(info.OutputDir))
	}
	_, _ = fmt.Fprintln(r.out)
	for i, name := range info.FileList {
		_, _ = fmt.Fprintf(r.out, "  %d. %s\n", i+1, name)
	}
}

func (r *TerminalReporter) FileProgress(context FileProgressContext) {
	_, _ = fmt.Fprintf(r.out, "\nFile %s of %d: %s\n",
		r.bold.Sprint(context.CurrentFile),
		context.TotalFiles,
		context.Filename)
}

func (r *TerminalReporter) BatchComplete(summary BatchSummary) {
	r.heading("BATCH SUMMARY")
	_, _ = fmt.Fprintf(r.out, "  %s\n", r.bold.Sprintf("%d of %d probed", summary.SuccessfulCount, summary.TotalFiles))
	if summary.NoResultCount > 0 {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.yellow.Sprintf("%d without result", summary.NoResultCount))
	}
	_, _ = fmt.Fprintf(r.out, "  Time: %s\n", util.FormatDurationFromSecs(int64(summary.TotalDuration.Seconds())))

	for _, result := range summary.FileResults {
		if !result.Opened {
			_, _ = fmt.Fprintf(r.out, "  - %s (%s)\n", result.Filename, r.yellow.Sprint("no result"))
			continue
		}
		_, _ = fmt.Fprintf(r.out, "  - %s (%d results)\n", result.Filename, result.Results)
	}
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	_, _ = fmt.Fprintf(r.out, "  %s\n", r.faint.Sprint(message))
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
