package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"skyarena/internal/history"
)

var historyReq history.Request

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the history streams offline",
	Long:  "history reads the configured database directly and prints the same JSON the /api/history route returns.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()
		ctx, stop := signalContext()
		defer stop()

		db, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()

		req := historyReq
		for flag, dst := range map[string]*any{"team": &req.Team, "target": &req.Target, "limit": &req.Limit} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				*dst = v
			}
		}
		resp := history.NewService(db, log).Query(ctx, req)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if !resp.OK {
			return errHistory(resp.Error)
		}
		return nil
	},
}

type errHistory string

func (e errHistory) Error() string { return "history: " + string(e) }

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyReq.Stream, "stream", "telemetry", "Stream to query (telemetry, locks, kamikaze)")
	f.String("team", "", "Team (telemetry) or source team (events)")
	f.String("target", "", "Target team (locks only)")
	f.StringVar(&historyReq.Start, "start", "", "Start time, inclusive (RFC3339 or 2006-01-02 15:04:05)")
	f.StringVar(&historyReq.End, "end", "", "End time, inclusive")
	f.String("limit", "", "Maximum rows (default 1000, capped at 10000)")
}
