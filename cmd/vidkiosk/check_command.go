package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidkiosk/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check binaries, directories, scanner, and ntfy without the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := 0

			depLines := make([]string, 0, 2)
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				if dep.Available {
					depLines = append(depLines, renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (command: %s)", dep.Command), colorize))
					continue
				}
				kind := statusError
				if dep.Optional {
					kind = statusWarn
				} else {
					failed++
				}
				depLines = append(depLines, renderStatusLine(dep.Name, kind, dep.Detail, colorize))
			}
			printSection(out, "Dependencies", colorize, depLines...)

			results := preflight.RunAll(cmd.Context(), cfg)
			checkLines := make([]string, 0, len(results))
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = checkSeverity(result.Name)
					if kind == statusError {
						failed++
					}
				}
				checkLines = append(checkLines, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			printSection(out, "Preflight", colorize, checkLines...)

			if failed > 0 {
				return errors.New("preflight checks failed")
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
}

// checkSeverity downgrades failures the kiosk can run without.
func checkSeverity(name string) statusKind {
	switch name {
	case "Feedback sounds", "Barcode scanner", "ntfy":
		return statusWarn
	default:
		return statusError
	}
}
