package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quickview/internal/batch"
	"quickview/internal/itemkey"
	"quickview/internal/pipeline"
)

const errorColumnWidth = 48

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var fromFile string
	var selection string
	var pacingSeconds float64
	var workers int
	var forceRefresh bool
	var noCache bool
	var summaryXLSX string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "batch [bvid...]",
		Short: "Analyze several videos, by default from the watch-later list",
		Long: "Analyze several videos in one run.\n\n" +
			"Candidates come from the arguments, from --from-file (.txt with one id per line, or the\n" +
			"first column of an .xlsx sheet), or otherwise from the watch-later list. --select picks\n" +
			"a subset using 1-based positions: all, n, start-end, or a comma list such as 1,4-6.",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg := ctx.config
			source, candidates, err := batchCandidates(cmd, ctx, args, fromFile)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return fmt.Errorf("no candidates found in %s", source)
			}
			selected, err := batch.Select(candidates, selection)
			if err != nil {
				return err
			}
			items := itemkey.ParseEach(selected)

			if !cmd.Flags().Changed("pacing") {
				pacingSeconds = cfg.Batch.PacingSeconds
			}
			if pacingSeconds < 0 {
				return fmt.Errorf("--pacing must be >= 0, got %v", pacingSeconds)
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Batch.Workers
			}
			if workers < 1 {
				workers = 1
			}
			pacing := time.Duration(pacingSeconds * float64(time.Second))
			if workers > 1 {
				// Parallel batches are spaced by the acquisition gate.
				cfg.Batch.PacingSeconds = pacingSeconds
			}

			progress := &lockedWriter{w: cmd.ErrOrStderr()}
			colors := newPalette(cmd.ErrOrStderr())
			total := len(items)
			orchestrator := ctx.newOrchestrator(cmd.Context(), runSettings{
				workers: workers,
				source:  source,
				opts:    pipelineOptions(forceRefresh, noCache),
				onChange: func(k itemkey.Key, state pipeline.State) {
					if !jsonOutput && state != pipeline.StateDone && state != pipeline.StateFailed {
						progress.printf("  %s: %s\n", k, state)
					}
				},
				progress: func(item batch.ItemResult) {
					if !jsonOutput {
						progress.printf("[%d/%d] %s %s\n", item.Position+1, total, item.Key, colors.status(item.Status))
					}
				},
			})

			summary := orchestrator.RunCandidates(cmd.Context(), items, pacing)

			if strings.TrimSpace(summaryXLSX) != "" {
				if err := batch.WriteSummaryXLSX(summaryXLSX, summary); err != nil {
					return err
				}
				if !jsonOutput {
					fmt.Fprintf(cmd.ErrOrStderr(), "Summary written to %s\n", summaryXLSX)
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd, newSummaryView(summary)); err != nil {
					return err
				}
			} else {
				printBatchSummary(cmd, summary)
			}
			if summary.HasFailures() {
				return failureCount(summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&fromFile, "from-file", "f", "", "Read candidates from a .txt or .xlsx file")
	cmd.Flags().StringVarP(&selection, "select", "s", "all", "Which candidates to run: all, n, start-end, or a comma list (1-based)")
	cmd.Flags().Float64Var(&pacingSeconds, "pacing", 0, "Seconds to wait between items (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Items to process concurrently (default from config)")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Download audio again and ignore cached transcripts")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not read cached transcripts")
	cmd.Flags().StringVar(&summaryXLSX, "summary-xlsx", "", "Also write the per-item summary to an .xlsx file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the summary as JSON")
	return cmd
}

// batchCandidates returns a label for where the candidates came from and the
// raw identifiers in order.
func batchCandidates(cmd *cobra.Command, ctx *commandContext, args []string, fromFile string) (string, []string, error) {
	fromFile = strings.TrimSpace(fromFile)
	switch {
	case len(args) > 0 && fromFile != "":
		return "", nil, fmt.Errorf("pass identifiers or --from-file, not both")
	case len(args) > 0:
		return "args", args, nil
	case fromFile != "":
		candidates, err := batch.ReadCandidates(fromFile)
		if err != nil {
			return "", nil, err
		}
		return fromFile, candidates, nil
	}

	items, err := ctx.bilibiliClient().WatchLater(cmd.Context())
	if err != nil {
		return "", nil, err
	}
	candidates := make([]string, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, item.BVID)
	}
	return "watchlater", candidates, nil
}

func printBatchSummary(cmd *cobra.Command, summary batch.Summary) {
	out := cmd.OutOrStdout()
	colors := newPalette(out)
	rows := make([][]string, 0, len(summary.Items))
	for _, item := range summary.Items {
		detail := item.Artifact.ReportPath
		if item.Err != nil {
			detail = truncate(item.Err.Error(), errorColumnWidth)
		} else if item.Status == batch.StatusEmpty {
			detail = "no speech recognized"
		}
		rows = append(rows, []string{
			strconv.Itoa(item.Position + 1),
			item.Key.String(),
			colors.status(item.Status),
			valueOrDash(string(failedStage(item))),
			strconv.Itoa(item.Artifact.CharCount),
			formatSeconds(item.Duration),
			valueOrDash(detail),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Item", "Status", "Stage", "Chars", "Seconds", "Report / Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "Succeeded: %d  Failed: %d  Empty: %d  Total: %d  (%s)\n",
		summary.Succeeded, summary.Failed, summary.Empty, summary.Total, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Run ID: %s\n", summary.RunID)
}

func failedStage(item batch.ItemResult) pipeline.State {
	if item.Err == nil {
		return ""
	}
	return item.Stage
}
