package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

const titleColumnWidth = 40

func newWatchLaterCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "watchlater",
		Aliases: []string{"wl"},
		Short:   "List the watch-later queue with the positions used by batch --select",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			items, err := ctx.bilibiliClient().WatchLater(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, items)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "Watch-later list is empty")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for i, item := range items {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					item.BVID,
					truncate(item.Title, titleColumnWidth),
					valueOrDash(item.Owner),
					formatClock(time.Duration(item.DurationSeconds) * time.Second),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "BVID", "Title", "Owner", "Length"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "%d videos\n", len(items))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the list as JSON")
	return cmd
}

// formatClock renders d as h:mm:ss or m:ss.
func formatClock(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
