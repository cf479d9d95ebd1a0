package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"quickview/internal/itemkey"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached transcripts and downloaded audio",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache and download usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := ctx.cacheStore().Stats()
			if err != nil {
				return err
			}
			usage, err := ctx.acquisitionStage(nil).Usage()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache directory:    %s\n", ctx.config.Paths.CacheDir)
			fmt.Fprintf(out, "Cached entries:     %d (%s)\n", stats.Entries, humanBytes(stats.Bytes))
			stages := make([]string, 0, len(stats.ByStage))
			for stage := range stats.ByStage {
				stages = append(stages, stage)
			}
			sort.Strings(stages)
			for _, stage := range stages {
				fmt.Fprintf(out, "  %-17s %d\n", stage+":", stats.ByStage[stage])
			}
			fmt.Fprintf(out, "Download directory: %s\n", ctx.config.Paths.DownloadDir)
			fmt.Fprintf(out, "Downloaded audio:   %d files (%s)\n", usage.Files, humanBytes(usage.Bytes))
			return nil
		},
	}
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ctx.cacheStore().List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for i, entry := range entries {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					entry.Key,
					entry.Stage,
					formatTimestamp(entry.CreatedAt),
					valueOrDash(entry.ProducerVersion),
					humanBytes(entry.SizeBytes),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Item", "Stage", "Created", "Producer", "Size"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepAudio bool

	cmd := &cobra.Command{
		Use:   "remove <bvid>",
		Short: "Remove cached results and downloaded audio for one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := itemkey.Parse(args[0])
			if err != nil {
				return err
			}
			removed, err := ctx.cacheStore().Remove(key.String())
			if err != nil {
				return err
			}
			audio := false
			if !keepAudio {
				audio, err = ctx.acquisitionStage(nil).Remove(key)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if removed == 0 && !audio {
				fmt.Fprintf(out, "Nothing cached for %s\n", key)
				return nil
			}
			fmt.Fprintf(out, "Removed %d cache entries for %s\n", removed, key)
			if audio {
				fmt.Fprintln(out, "Removed downloaded audio")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepAudio, "keep-audio", false, "Keep the downloaded audio file")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var keepAudio bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry and downloaded audio file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := ctx.cacheStore().Clear()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cleared %d cache entries\n", removed)
			if keepAudio {
				return nil
			}
			files, err := ctx.acquisitionStage(nil).Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Cleared %d downloaded audio files\n", files)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepAudio, "keep-audio", false, "Keep downloaded audio files")
	return cmd
}
