package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidshrink/internal/config"
	"vidshrink/internal/ledger"
	"vidshrink/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		video  string
		event  string
		level  string
		events bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the structured log or the filesystem ledger event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogPath()
			if events {
				path = cfg.EventLogPath()
			}

			var matchers []logs.Matcher
			if video = strings.TrimSpace(video); video != "" {
				matchers = append(matchers, logs.ForVideo(video))
			}
			if event = strings.TrimSpace(event); event != "" {
				matchers = append(matchers, logs.ForEvent(event))
			}
			if level = strings.TrimSpace(level); level != "" {
				matchers = append(matchers, logs.AtLeast(level))
			}
			match := logs.All(matchers...)

			out := cmd.OutOrStdout()
			recent, offset, err := logs.Last(path, lines, match)
			if err != nil {
				return err
			}
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, 0, match, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&video, "video", "", "Only records whose video_path contains this text")
	cmd.Flags().StringVar(&event, "event", "", "Only records with this event type")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().BoolVar(&events, "events", false, "Read the filesystem ledger event log instead of the structured log")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <path>",
		Short: "Show the ledger state and processing events for one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var history []ledger.Event
			if rt.store != nil {
				v, err := rt.store.GetByPath(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n  status %s, action %s, size %s\n", v.Path, label(string(v.Status)), label(string(v.Action)), formatBytes(v.SizeBytes))
				if v.BackupPath != "" {
					fmt.Fprintf(out, "  backup %s\n", v.BackupPath)
				}
				if v.ErrorMessage != "" {
					fmt.Fprintf(out, "  error %s\n", v.ErrorMessage)
				}
				history, err = rt.store.RecentEvents(cmd.Context(), v.ID, limit)
				if err != nil {
					return err
				}
				for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
					history[i], history[j] = history[j], history[i]
				}
			} else {
				all, err := rt.fs.ReadEvents()
				if err != nil {
					return err
				}
				for _, e := range all {
					if e.VideoPath == path {
						history = append(history, e)
					}
				}
				if limit > 0 && len(history) > limit {
					history = history[len(history)-limit:]
				}
			}

			if len(history) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			rows := make([][]string, 0, len(history))
			for _, e := range history {
				rows = append(rows, []string{e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Machine, e.Event, e.Details})
			}
			fmt.Fprintln(out, renderTable([]string{"Time", "Machine", "Event", "Details"}, rows, nil, nil))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum events to show")
	return cmd
}
