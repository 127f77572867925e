package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bdougie/anomalyvision/internal/analyzer"
	"github.com/bdougie/anomalyvision/internal/config"
	"github.com/bdougie/anomalyvision/internal/extractor"
	"github.com/bdougie/anomalyvision/internal/storage"
)

// Version is the application version.
const Version = "0.1.0"

// app holds what every subcommand needs once the root has run
type app struct {
	configPath string
	logLevel   string

	cfg         *config.Config
	logger      *slog.Logger
	decoder     extractor.Decoder
	newAnalyzer func(ctx context.Context, cfg analyzer.Config, logger *slog.Logger) (analyzer.Analyzer, error)
}

// NewRootCmd builds the command tree using ffmpeg for decoding
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{
		decoder:     extractor.NewFFmpegDecoder(),
		newAnalyzer: analyzer.New,
	})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "anomalyvision",
		Short:         "Detect suspicious events in video with a vision model",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = a.logLevel
			}
			level, err := cfg.Level()
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = newLogger(cmd.ErrOrStderr(), level)
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd(a), newHistoryCmd(a), newProbeCmd(a))
	return root
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
}

// openStorage picks Postgres when a database URL is configured, JSON files otherwise
func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	if a.cfg.DatabaseURL != "" {
		a.logger.Debug("using postgres storage")
		return storage.NewPostgresStorage(ctx, a.cfg.DatabaseURL)
	}
	a.logger.Debug("using file storage", "dir", a.cfg.OutputDir)
	return storage.NewFileStorage(a.cfg.OutputDir), nil
}

// Execute runs the root command, cancelling on Ctrl+C or SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
