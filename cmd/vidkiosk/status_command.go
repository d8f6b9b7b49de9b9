package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidkiosk/internal/daemon"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/playback"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show player, admission, scanner, and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client, err := ctx.dialClient()
			if err != nil {
				if asJSON {
					return err
				}
				printSection(out, "Daemon", colorize,
					renderStatusLine("Daemon", statusError, "Not running", colorize),
					renderStatusLine("Socket", statusInfo, ctx.socketPath(), colorize),
				)
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			for _, section := range statusSections(status, colorize) {
				printSection(out, section.title, colorize, section.lines...)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status as JSON")
	return cmd
}

type statusSection struct {
	title string
	lines []string
}

func statusSections(s *daemon.Status, colorize bool) []statusSection {
	daemonLines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", s.PID), colorize),
		playerLine(s, colorize),
		renderStatusLine("Queue", statusInfo, fmt.Sprintf("%d waiting", s.QueueDepth), colorize),
		renderStatusLine("Debug overlay", statusInfo, yesNo(s.DebugMode), colorize),
	}

	admission := []string{admissionLine(s, colorize)}
	if s.RetryAfter > 0 {
		admission = append(admission, renderStatusLine("Next video", statusWarn, "in "+formatWait(s.RetryAfter), colorize))
	} else {
		admission = append(admission, renderStatusLine("Next video", statusOK, "available now", colorize))
	}

	scannerLine := renderStatusLine("Device", statusWarn, "Not detected (dashboard and CLI still work)", colorize)
	if strings.TrimSpace(s.ScannerDevice) != "" {
		scannerLine = renderStatusLine("Device", statusOK, s.ScannerDevice, colorize)
	}

	cacheLines := []string{renderStatusLine("Cache", statusWarn, "Unavailable", colorize)}
	if c := s.Cache; c != nil {
		usage := fmt.Sprintf("%d videos, %s", c.Entries, logging.FormatBytes(c.TotalBytes))
		if c.MaxBytes > 0 {
			usage += " of " + logging.FormatBytes(c.MaxBytes)
		}
		cacheLines = []string{
			renderStatusLine("Cache", statusOK, usage, colorize),
			renderStatusLine("Disk free", statusInfo, logging.FormatBytes(int64(c.FreeBytes)), colorize),
		}
	}

	sections := []statusSection{
		{title: "Kiosk", lines: daemonLines},
		{title: "Admission", lines: admission},
		{title: "Scanner", lines: []string{scannerLine}},
		{title: "Cache", lines: cacheLines},
	}
	if last := s.LastOutcome; last != nil {
		kind := statusOK
		if last.State != "idle" {
			kind = statusWarn
		}
		detail := fmt.Sprintf("%s (%s, %s)", last.Message, last.Source, formatClock(last.At))
		sections = append(sections, statusSection{
			title: "Last Request",
			lines: []string{renderStatusLine("Outcome", kind, detail, colorize)},
		})
	}
	sections = append(sections, statusSection{
		title: "Storage",
		lines: []string{
			renderStatusLine("Database", statusInfo, s.DatabasePath, colorize),
			renderStatusLine("Lock", statusInfo, s.LockPath, colorize),
		},
	})
	return sections
}

func playerLine(s *daemon.Status, colorize bool) string {
	if s.Player.State == playback.StatePlaying {
		detail := "Playing"
		if s.VideoID != "" {
			detail += " " + s.VideoID
		}
		if !s.Player.Since.IsZero() {
			detail += " since " + s.Player.Since.Local().Format("15:04")
		}
		return renderStatusLine("Player", statusOK, detail, colorize)
	}
	return renderStatusLine("Player", statusInfo, "Idle (black screen)", colorize)
}

func admissionLine(s *daemon.Status, colorize bool) string {
	if s.MaxVideos == 0 {
		return renderStatusLine("Plays", statusWarn, "Policy unavailable", colorize)
	}
	kind := statusOK
	if s.PlaysInWindow >= s.MaxVideos {
		kind = statusWarn
	}
	detail := fmt.Sprintf("%d of %d in the last %s", s.PlaysInWindow, s.MaxVideos, formatPeriod(s.Period))
	return renderStatusLine("Plays", kind, detail, colorize)
}
