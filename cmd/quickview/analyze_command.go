package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quickview/internal/itemkey"
	"quickview/internal/pipeline"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var forceRefresh bool
	var noCache bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze <bvid-or-url>",
		Short: "Transcribe and analyze a single video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			key, err := itemkey.Parse(args[0])
			if err != nil {
				return err
			}

			progress := &lockedWriter{w: cmd.ErrOrStderr()}
			orchestrator := ctx.newOrchestrator(cmd.Context(), runSettings{
				workers: 1,
				source:  "analyze",
				opts:    pipelineOptions(forceRefresh, noCache),
				onChange: func(k itemkey.Key, state pipeline.State) {
					if !jsonOutput {
						progress.printf("%s: %s\n", k, state)
					}
				},
			})
			summary := orchestrator.RunBatch(cmd.Context(), []itemkey.Key{key}, 0)
			item := summary.Items[0]

			if jsonOutput {
				if err := writeJSON(cmd, newItemView(item)); err != nil {
					return err
				}
				if item.Err != nil {
					return failureCount(1, 1)
				}
				return nil
			}
			if item.Err != nil {
				return item.Err
			}

			out := cmd.OutOrStdout()
			artifact := item.Artifact
			if artifact.Empty {
				fmt.Fprintf(out, "No speech was recognized in %s; nothing to analyze.\n", key)
				return nil
			}
			if artifact.Title != "" {
				fmt.Fprintf(out, "%s  %s\n\n", key, artifact.Title)
			}
			fmt.Fprintln(out, strings.TrimSpace(artifact.Analysis))
			fmt.Fprintln(out)
			if artifact.ReportPath != "" {
				fmt.Fprintf(out, "Report: %s\n", artifact.ReportPath)
			} else {
				fmt.Fprintln(out, "Report was not saved; see the log for details.")
			}
			if artifact.FromCache {
				fmt.Fprintln(out, "Transcript served from cache.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Download audio again and ignore cached transcripts")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not read cached transcripts")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output result as JSON")
	return cmd
}
