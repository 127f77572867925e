package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdougie/anomalyvision/internal/config"
	"github.com/bdougie/anomalyvision/internal/extractor"
)

func newProbeCmd(a *app) *cobra.Command {
	var (
		video  string
		frames int
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show video properties and the instants that would be sampled",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.Extractor()
			if cmd.Flags().Changed("frames") {
				opts.Frames = frames
			}
			if opts.Frames < 1 || opts.Frames > config.MaxFrames {
				return fmt.Errorf("frames must be between 1 and %d, got %d", config.MaxFrames, opts.Frames)
			}

			ex := extractor.New(a.decoder, opts, a.logger)
			info, instants, err := ex.Probe(cmd.Context(), video)
			if err != nil {
				return err
			}

			width, height := extractor.FitWithin(info.Width, info.Height, opts.MaxDimension)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Duration:   %.3fs\n", info.Duration)
			fmt.Fprintf(out, "Frame rate: %.3f fps\n", info.FPS)
			fmt.Fprintf(out, "Size:       %dx%d (sampled at %dx%d)\n", info.Width, info.Height, width, height)

			if len(instants) == 0 {
				fmt.Fprintln(out, "Samples:    none, the video has no duration")
				return nil
			}
			offsets := make([]string, len(instants))
			for i, at := range instants {
				offsets[i] = fmt.Sprintf("%.2f", at)
			}
			fmt.Fprintf(out, "Samples:    %d of %d requested\n", len(instants), opts.Frames)
			fmt.Fprintf(out, "Offsets:    %s\n", strings.Join(offsets, ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&video, "video", "v", "", "Path to the video file")
	cmd.Flags().IntVarP(&frames, "frames", "n", extractor.DefaultFrames, "Number of frames to sample")
	cmd.MarkFlagRequired("video")
	return cmd
}
