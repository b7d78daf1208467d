// Package main provides the CLI entry point for deepprobe.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/five82/deepprobe"
	"github.com/five82/deepprobe/internal/annotation"
	"github.com/five82/deepprobe/internal/config"
	"github.com/five82/deepprobe/internal/logging"
	"github.com/five82/deepprobe/internal/metrics"
	"github.com/five82/deepprobe/internal/util"
)

const (
	appName    = "deepprobe"
	appVersion = "0.3.0"
)

// globalArgs holds the flags shared by every command.
type globalArgs struct {
	configPath  string
	logLevel    string
	logFormat   string
	logDir      string
	noLog       bool
	verbose     bool
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	cachePath   string
	metricsFile string
	workers     int
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var ga globalArgs

	root := &cobra.Command{
		Use:           appName,
		Short:         "Deep inspection of media files with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       appVersion,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&ga.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&ga.logLevel, "log-level", config.DefaultLogLevel, "Console log level (debug, info, warn, error)")
	pf.StringVar(&ga.logFormat, "log-format", config.DefaultLogFormat, "Console log format (console, json)")
	pf.StringVarP(&ga.logDir, "log-dir", "l", "", "Run log directory (defaults to the user cache dir)")
	pf.BoolVar(&ga.noLog, "no-log", false, "Disable run log file creation")
	pf.BoolVarP(&ga.verbose, "verbose", "v", false, "Enable verbose output for troubleshooting")
	pf.StringVar(&ga.ffmpegPath, "ffmpeg", config.DefaultFFmpegPath, "ffmpeg binary")
	pf.StringVar(&ga.ffprobePath, "ffprobe", config.DefaultFFprobePath, "ffprobe binary")
	pf.StringVar(&ga.tempDir, "temp-dir", "", "Directory for ffmpeg work files")
	pf.StringVar(&ga.cachePath, "cache", "", "SQLite report cache (empty disables caching)")
	pf.StringVar(&ga.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	pf.IntVar(&ga.workers, "workers", util.DefaultWorkers(), "Number of files probed at once")

	root.AddCommand(
		newProbeCommand(&ga),
		newDeepCommand(&ga),
		newGraphCommand(&ga),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
}

// session is everything a command needs once flags are resolved.
type session struct {
	verbose bool
	cfg     *config.Config
	logger  *zap.Logger
	fileLog *logging.FileLog
	metrics *metrics.Collector
	prober  *deepprobe.Prober
}

// loadConfig resolves defaults, the config file, the environment and the
// flags the user set explicitly, in that order.
func loadConfig(cmd *cobra.Command, ga *globalArgs) (*config.Config, error) {
	cfg := config.NewConfig(".", ".", config.DefaultLogDir())
	if ga.configPath != "" {
		if _, err := os.Stat(ga.configPath); err != nil {
			return nil, fmt.Errorf("config file not found: %s", ga.configPath)
		}
		if err := config.LoadFile(cfg, ga.configPath); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { cfg.LogLevel = ga.logLevel })
	set("log-format", func() { cfg.LogFormat = ga.logFormat })
	set("log-dir", func() { cfg.LogDir = ga.logDir })
	set("ffmpeg", func() { cfg.FFmpegPath = ga.ffmpegPath })
	set("ffprobe", func() { cfg.FFprobePath = ga.ffprobePath })
	set("temp-dir", func() { cfg.TempDir = ga.tempDir })
	set("cache", func() { cfg.CachePath = ga.cachePath })
	set("metrics-file", func() { cfg.MetricsFile = ga.metricsFile })
	set("workers", func() { cfg.Workers = ga.workers })
	if ga.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// openSession sets up logging, metrics and the prober. The caller must
// close the session.
func openSession(cmd *cobra.Command, ga *globalArgs, opts ...deepprobe.Option) (*session, error) {
	cfg, err := loadConfig(cmd, ga)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	fileLog, err := logging.Setup(cfg.LogDir, ga.verbose, ga.noLog)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	consoleCfg := logging.DefaultConfig()
	consoleCfg.Level = cfg.LogLevel
	consoleCfg.Format = cfg.LogFormat
	consoleCfg.Enabled = ga.verbose
	logger := fileLog.Tee(logging.New(consoleCfg))

	s := &session{
		verbose: ga.verbose,
		cfg:     cfg,
		logger:  logger,
		fileLog: fileLog,
		metrics: metrics.NewCollector(config.DefaultMetricsNamespace, logger.Named("metrics")),
	}

	sys := util.GetSystemInfo()
	logger.Info("deepprobe session",
		zap.String("version", appVersion),
		zap.String("host", sys.Hostname),
		zap.String("platform", sys.OS+"/"+sys.Arch),
		zap.Int("cpus", sys.NumCPU),
		zap.Int("workers", cfg.Workers))

	tempDir := cfg.GetTempDir()
	if n, err := util.CleanupStaleTempFiles(tempDir, annotation.WorkDirPrefix, cfg.StaleTempAge); err != nil {
		logger.Warn("failed to clean stale work directories", zap.Error(err))
	} else if n > 0 {
		logger.Info("removed stale work directories", zap.Int("count", n))
	}
	util.CheckDiskSpace(tempDir, logger.Sugar().Warnf)

	opts = append([]deepprobe.Option{
		deepprobe.WithConfig(cfg),
		deepprobe.WithLogger(logger),
		deepprobe.WithMetrics(s.metrics),
	}, opts...)
	s.prober, err = deepprobe.New(opts...)
	if err != nil {
		_ = fileLog.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.cfg.MetricsFile != "" {
		_ = s.metrics.WriteTextfile(s.cfg.MetricsFile)
	}
	if err := s.prober.Close(); err != nil {
		s.logger.Warn("failed to close report cache", zap.Error(err))
	}
	_ = s.logger.Sync()
	_ = s.fileLog.Close()
	if s.verbose && s.fileLog.FilePath() != "" {
		fmt.Fprintf(os.Stderr, "Log file: %s\n", s.fileLog.FilePath())
	}
}
