package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"skyarena/internal/watch"
)

var (
	watchServer string
	watchToken  string
	watchPlain  bool
	watchRetry  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a server's event stream in the terminal",
	Long:  "watch shows the live peers table and the lock, kamikaze, geofence and registry events of a running server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()
		url := strings.TrimRight(watchServer, "/") + "/api/events"
		sink := watch.NewSink(url, watchPlain)
		defer sink.Close()

		ctx, stop := signalContext()
		defer stop()
		c := &watch.Client{URL: url, Token: watchToken, Retry: watchRetry, Log: log}
		return c.Run(ctx, sink)
	},
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchServer, "server", "http://127.0.0.1:10001", "Server base URL")
	f.StringVar(&watchToken, "token", "", "Bearer key, if the server requires one")
	f.BoolVar(&watchPlain, "plain", false, "Print plain lines even on a terminal")
	f.DurationVar(&watchRetry, "retry", 2*time.Second, "Reconnect delay (0 exits when the stream ends)")
}
