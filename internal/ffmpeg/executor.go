package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/deepprobe/internal/errors"
	"github.com/five82/deepprobe/internal/util"
)

// Progress represents analysis progress of one ffmpeg run.
type Progress struct {
	CurrentFrame uint64
	Percent      float32
	Speed        float32
	FPS          float32
	ETA          time.Duration
	ElapsedSecs  float64
}

// ProgressCallback is called with progress updates while ffmpeg runs.
type ProgressCallback func(Progress)

// Result contains the outcome of an ffmpeg run.
type Result struct {
	Stderr string
}

var timeRegex = regexp.MustCompile(`time=(\d{2}:\d{2}:\d{2}\.?\d*)`)

// Runner executes ffmpeg invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation, callback ProgressCallback) (Result, error)
}

// Executor runs the ffmpeg binary.
type Executor struct {
	Logger *zap.Logger
}

// NewExecutor creates an executor. A nil logger disables logging.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{Logger: logger}
}

// Run executes an invocation with progress reporting. A non-zero exit,
// including failure to open an input or link the graph, is returned as an
// execution error carrying ffmpeg's own message.
func (e *Executor) Run(ctx context.Context, inv Invocation, callback ProgressCallback) (Result, error) {
	bin := binary(inv.Binary)
	args := BuildCommand(inv)
	e.Logger.Debug("running ffmpeg", zap.String("binary", bin), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, errors.NewExecutionError("failed to get stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, errors.NewExecutionError("failed to get stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, errors.NewExecutionError(fmt.Sprintf("failed to start %s", bin), errors.NewCommandStartError(bin, err))
	}

	// Both pipes must be drained before Wait.
	var stderrBuilder strings.Builder
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(io.Discard, stdout)
		return err
	})
	g.Go(func() error {
		return parseProgress(stderr, &stderrBuilder, inv.Duration, callback)
	})
	drainErr := g.Wait()

	err = cmd.Wait()
	stderrStr := stderrBuilder.String()
	res := Result{Stderr: stderrStr}

	if err != nil {
		if ctx.Err() != nil {
			return res, errors.NewCancelledError()
		}
		return res, errors.NewExecutionError(lastLine(stderrStr), errors.WrapExecError(bin, err, stderrStr))
	}
	if drainErr != nil {
		e.Logger.Warn("error reading ffmpeg output", zap.Error(drainErr))
	}
	return res, nil
}

// lastLine returns the last non-empty stderr line, which is where ffmpeg
// puts the reason it gave up.
func lastLine(stderr string) string {
	lines := strings.FieldsFunc(stderr, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "ffmpeg failed"
}

// parseProgress reads FFmpeg stderr and parses progress updates.
func parseProgress(stderr io.Reader, stderrBuilder *strings.Builder, duration float64, callback ProgressCallback) error {
	reader := bufio.NewReader(stderr)
	var lineBuf strings.Builder

	for {
		b, err := reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		stderrBuilder.WriteByte(b)

		// Progress lines end with \r or \n
		if b == '\r' || b == '\n' {
			line := lineBuf.String()
			lineBuf.Reset()

			if callback != nil && (strings.Contains(line, "frame=") || strings.Contains(line, "size=")) {
				if progress := parseProgressLine(line, duration); progress != nil {
					callback(*progress)
				}
			}
		} else {
			lineBuf.WriteByte(b)
		}
	}
}

// parseProgressLine extracts progress information from an FFmpeg progress line.
// Audio-only runs print "size=" lines without a frame counter.
func parseProgressLine(line string, duration float64) *Progress {
	var elapsedSecs float64
	matches := timeRegex.FindStringSubmatch(line)
	if len(matches) < 2 {
		return nil
	}
	if secs, ok := util.ParseFFmpegTime(matches[1]); ok {
		elapsedSecs = secs
	}

	var frame uint64
	if v, ok := fieldValue(line, "frame="); ok {
		if f, err := strconv.ParseUint(v, 10, 64); err == nil {
			frame = f
		}
	}

	var fps float32
	if v, ok := fieldValue(line, "fps="); ok {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			fps = float32(f)
		}
	}

	var speed float32
	if v, ok := fieldValue(line, "speed="); ok {
		if s, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 32); err == nil {
			speed = float32(s)
		}
	}

	var percent float32
	if duration > 0 {
		percent = float32((elapsedSecs / duration) * 100)
		if percent > 100 {
			percent = 100
		}
	}

	var eta time.Duration
	if speed > 0 && duration > 0 && elapsedSecs < duration {
		etaSeconds := (duration - elapsedSecs) / float64(speed)
		eta = time.Duration(etaSeconds) * time.Second
	}

	return &Progress{
		CurrentFrame: frame,
		Percent:      percent,
		Speed:        speed,
		FPS:          fps,
		ETA:          eta,
		ElapsedSecs:  elapsedSecs,
	}
}

// fieldValue returns the value following key, tolerating ffmpeg's padding
// ("frame=  120 fps= 30").
func fieldValue(line, key string) (string, bool) {
	idx := strings.Index(line, key)
	if idx < 0 {
		return "", false
	}
	remaining := strings.TrimLeft(line[idx+len(key):], " ")
	if end := strings.IndexAny(remaining, " \t\r\n"); end >= 0 {
		remaining = remaining[:end]
	}
	if remaining == "" {
		return "", false
	}
	return remaining, true
}
