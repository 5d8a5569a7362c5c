package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skyarena/internal/auth"
	"skyarena/internal/config"
	"skyarena/internal/simulate"
)

var (
	simServer     string
	simTeams      []int
	simTick       time.Duration
	simRadius     float64
	simLockChance float64
	simSeed       int64
	simLat        float64
	simLon        float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Fly synthetic teams against a running server",
	Long:  "simulate posts telemetry for each team on every tick and occasionally reports locks on a peer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()
		tokens, err := teamTokens(cfg, simTeams)
		if err != nil {
			return err
		}
		r, err := simulate.NewRunner(simulate.Options{
			BaseURL:    simServer,
			Teams:      simTeams,
			Center:     simulate.Position{Lat: simLat, Lon: simLon, Alt: 100},
			Radius:     simRadius,
			Tick:       simTick,
			LockChance: simLockChance,
			Seed:       simSeed,
			Tokens:     tokens,
		}, nil, log)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		log.Info("simulation started", "server", simServer, "teams", simTeams, "tick", simTick)
		return r.Run(ctx)
	},
}

// teamTokens issues short-lived team keys when the server secret is known.
func teamTokens(cfg *config.Config, teams []int) (map[int]string, error) {
	if cfg.Auth.Secret == "" {
		return nil, nil
	}
	a, err := auth.New(cfg.Auth.Secret)
	if err != nil {
		return nil, err
	}
	tokens := make(map[int]string, len(teams))
	for _, t := range teams {
		tok, err := a.Issue(t, auth.RoleTeam, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("issue key for team %d: %w", t, err)
		}
		tokens[t] = tok
	}
	return tokens, nil
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simServer, "server", "http://127.0.0.1:10001", "Server base URL")
	f.IntSliceVar(&simTeams, "teams", []int{1, 2, 3}, "Team numbers to simulate")
	f.DurationVar(&simTick, "tick", time.Second, "Telemetry tick interval (e.g. 500ms, 2s)")
	f.Float64Var(&simRadius, "radius", 500, "Spawn radius around the center in meters")
	f.Float64Var(&simLockChance, "lock-chance", 0.05, "Per-tick probability of reporting a lock")
	f.Int64Var(&simSeed, "seed", 0, "Random seed (0 uses the clock)")
	f.Float64Var(&simLat, "lat", 41.5124, "Center latitude")
	f.Float64Var(&simLon, "lon", 36.1194, "Center longitude")
}
