package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bdougie/anomalyvision/internal/storage"
)

const maxSummaryWidth = 60

func newHistoryCmd(a *app) *cobra.Command {
	var (
		video string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved analysis reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if video != "" {
				video = storage.VideoName(video)
			}
			reports, err := store.Recent(cmd.Context(), video, limit)
			if err != nil {
				return fmt.Errorf("failed to list reports: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "No reports found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "CREATED\tVIDEO\tBAD EVENT\tTYPE\tCONFIDENCE\tWINDOW\tSUMMARY")
			fmt.Fprintln(w, "-------\t-----\t---------\t----\t----------\t------\t-------")
			for _, rp := range reports {
				r := rp.Result
				bad := "no"
				if r.BadEvent {
					bad = "yes"
				}
				window := formatWindow(r.AnomalyStart, r.AnomalyEnd)
				if window == "" {
					window = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
					rp.CreatedAt.Local().Format("2006-01-02 15:04"),
					rp.Video, bad, r.EventType, r.Confidence, window, ellipsize(r.Summary, maxSummaryWidth))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&video, "video", "v", "", "Only show reports for this video name")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of reports to show")
	return cmd
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
