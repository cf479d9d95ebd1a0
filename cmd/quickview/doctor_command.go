package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quickview/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:         "doctor",
		Short:       "Check binaries, directories, credentials, and remote services",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colors := newPalette(out)

			cfg, err := ctx.ensureConfig()
			if err != nil {
				fmt.Fprintln(out, renderTable(
					[]string{"Check", "Status", "Detail"},
					[][]string{{"Configuration", colors.wrap(ansiRed, "FAIL"), err.Error()}},
					nil,
				))
				return errReported
			}

			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{Offline: offline})
			rows := make([][]string, 0, len(results)+1)
			rows = append(rows, []string{"Configuration", colors.wrap(ansiGreen, "OK"), "loaded"})
			for _, result := range results {
				rows = append(rows, []string{result.Name, checkStatus(colors, result), valueOrDash(result.Detail)})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if preflight.Failed(results) {
				fmt.Fprintln(out, "Some required checks failed")
				return errReported
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that contact remote services")
	return cmd
}

func checkStatus(colors palette, result preflight.Result) string {
	switch {
	case result.Passed:
		return colors.wrap(ansiGreen, "OK")
	case result.Optional:
		return colors.wrap(ansiYellow, "WARN")
	default:
		return colors.wrap(ansiRed, "FAIL")
	}
}
