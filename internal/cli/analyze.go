package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bdougie/anomalyvision/internal/analyzer"
	"github.com/bdougie/anomalyvision/internal/extractor"
	"github.com/bdougie/anomalyvision/internal/metrics"
	"github.com/bdougie/anomalyvision/internal/models"
	"github.com/bdougie/anomalyvision/internal/pipeline"
	"github.com/bdougie/anomalyvision/internal/storage"
)

type analyzeOptions struct {
	video    string
	frames   int
	backend  string
	endpoint string
	output   string
	jsonOut  bool
	noSave   bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Sample a video and report whether a suspicious event occurs",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("frames") {
				a.cfg.Frames = opts.frames
			}
			if flags.Changed("backend") {
				a.cfg.Backend = opts.backend
			}
			if flags.Changed("endpoint") {
				a.cfg.Endpoint = opts.endpoint
			}
			if flags.Changed("output") {
				a.cfg.OutputDir = opts.output
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), a, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.video, "video", "v", "", "Path to the video file")
	cmd.Flags().IntVarP(&opts.frames, "frames", "n", extractor.DefaultFrames, "Number of frames to sample")
	cmd.Flags().StringVar(&opts.backend, "backend", analyzer.BackendHTTP, "Inference backend (http, gemini, ollama)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Analysis endpoint for the http backend")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Directory for saved reports")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not store the report")
	cmd.MarkFlagRequired("video")

	return cmd
}

func runAnalyze(ctx context.Context, a *app, stdout, stderr io.Writer, opts *analyzeOptions) error {
	if a.cfg.MetricsAddr != "" {
		srv := metrics.StartServer(a.cfg.MetricsAddr, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	az, err := a.newAnalyzer(ctx, a.cfg.Analyzer(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s analyzer: %w", a.cfg.Backend, err)
	}

	sampler := extractor.New(a.decoder, a.cfg.Extractor(), a.logger)
	ctl := pipeline.New(sampler, az, a.cfg.Pipeline(), a.logger)
	defer ctl.Close()

	bars := &stageBars{w: stderr, quiet: opts.jsonOut}
	unsubscribe := ctl.Subscribe(bars.observe)
	defer unsubscribe()

	a.logger.Info("analyzing video", "video", opts.video, "backend", az.Name(), "frames", a.cfg.Frames)
	result, err := ctl.Analyze(ctx, opts.video)
	if err != nil {
		return err
	}

	report := models.NewReport(storage.VideoName(opts.video), az.Name(), len(ctl.Snapshot().Frames), result)
	if !opts.noSave {
		// The report is still printed when it cannot be stored
		if err := a.saveReport(context.WithoutCancel(ctx), report); err != nil {
			a.logger.Warn("failed to save report", "error", err)
		}
	}

	if opts.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(stdout, report)
	return nil
}

func (a *app) saveReport(ctx context.Context, report models.Report) error {
	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.AddResult(ctx, report); err != nil {
		return err
	}
	return store.Flush()
}

// stageBars renders one progress bar per pipeline stage
type stageBars struct {
	w     io.Writer
	quiet bool
	bar   *progressbar.ProgressBar
}

var stageLabels = map[pipeline.Stage]string{
	pipeline.StageExtracting: "Extracting frames",
	pipeline.StageAnalyzing:  "Analyzing",
}

func (b *stageBars) observe(e pipeline.Event) {
	if b.quiet {
		return
	}
	switch e.Kind {
	case pipeline.EventStage:
		b.finish()
		b.bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(stageLabels[e.Stage]),
			progressbar.OptionSetWriter(b.w),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(b.w) }),
		)
	case pipeline.EventProgress:
		if b.bar != nil {
			b.bar.Set(e.Progress)
		}
	case pipeline.EventCompleted:
		b.finish()
	case pipeline.EventFailed, pipeline.EventReset:
		if b.bar != nil {
			b.bar.Exit()
			fmt.Fprintln(b.w)
			b.bar = nil
		}
	}
}

func (b *stageBars) finish() {
	if b.bar != nil {
		b.bar.Finish()
		b.bar = nil
	}
}

func printReport(w io.Writer, report models.Report) {
	r := report.Result

	verdict := "no suspicious event"
	if r.BadEvent {
		verdict = "SUSPICIOUS EVENT"
	}
	fmt.Fprintf(w, "Video:      %s (%.1fs, %d frames, %s)\n", report.Video, r.Duration, report.FrameCount, report.Backend)
	fmt.Fprintf(w, "Verdict:    %s\n", verdict)
	fmt.Fprintf(w, "Event type: %s\n", r.EventType)
	fmt.Fprintf(w, "Confidence: %.0f%%\n", r.Confidence*100)
	if r.SeverityScore != nil {
		fmt.Fprintf(w, "Severity:   %.1f/10\n", *r.SeverityScore)
	}
	if window := formatWindow(r.AnomalyStart, r.AnomalyEnd); window != "" {
		fmt.Fprintf(w, "Window:     %s\n", window)
	}
	fmt.Fprintf(w, "Summary:    %s\n", r.Summary)
	if strings.TrimSpace(r.Reason) != "" {
		fmt.Fprintf(w, "Reason:     %s\n", r.Reason)
	}
}

// formatWindow renders the anomaly bounds as m:ss, or "" when neither is known
func formatWindow(start, end *float64) string {
	switch {
	case start == nil && end == nil:
		return ""
	case end == nil:
		return "from " + clock(*start)
	case start == nil:
		return "until " + clock(*end)
	default:
		return clock(*start) + " - " + clock(*end)
	}
}

func clock(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
