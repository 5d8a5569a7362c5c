package main

import (
	"time"

	"github.com/spf13/cobra"

	"skyarena/internal/auth"
	"skyarena/internal/simulate"
)

var (
	replayInput  string
	replaySpeed  float64
	replayServer string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay posts the packets of a telemetry JSONL log (see log_file) back to a running server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()
		opts := simulate.Options{BaseURL: replayServer}
		if cfg.Auth.Secret != "" {
			// a log mixes teams, so replay as referee
			a, err := auth.New(cfg.Auth.Secret)
			if err != nil {
				return err
			}
			if opts.Token, err = a.Issue(0, auth.RoleReferee, time.Hour); err != nil {
				return err
			}
		}
		r, err := simulate.NewRunner(opts, nil, log)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		return r.ReplayFile(ctx, replayInput, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 for no delay)")
	replayCmd.Flags().StringVar(&replayServer, "server", "http://127.0.0.1:10001", "Server base URL")
	replayCmd.MarkFlagRequired("input")
}
