package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/spf13/cobra"

	"skyarena/internal/api"
	"skyarena/internal/auth"
	"skyarena/internal/config"
	"skyarena/internal/geofence"
	"skyarena/internal/history"
	"skyarena/internal/hub"
	"skyarena/internal/ingest"
	"skyarena/internal/logging"
	"skyarena/internal/persist"
	"skyarena/internal/registry"
	"skyarena/internal/store"
)

var (
	serveListen   string
	serveHomeTeam int
	servePrint    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the competition server",
	Long:  "serve accepts team submissions, relays them to event stream subscribers and persists the history streams.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()
		if cmd.Flags().Changed("listen") {
			cfg.Listen = serveListen
		}
		if cmd.Flags().Changed("home-team") {
			cfg.HomeTeam = serveHomeTeam
		}
		return serve(cfg, log)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().IntVar(&serveHomeTeam, "home-team", 0, "Home team number (overrides config)")
	serveCmd.Flags().BoolVar(&servePrint, "print", false, "Also print persisted records to STDOUT as JSON lines")
}

// writers assembles the persistence sinks: the SQL store, plus the JSONL
// mirror, GreptimeDB and STDOUT when configured.
func writers(cfg *config.Config, db store.Store, log *slog.Logger) (persist.Writer, func(), error) {
	ws := []persist.Writer{db}
	cleanup := func() {}
	if cfg.LogFile != "" {
		fw, err := persist.NewFileWriter(persist.FilePaths(cfg.LogFile))
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, fw)
		cleanup = func() { fw.Close() }
	}
	if cfg.Greptime.Endpoint != "" {
		gw, err := persist.NewGreptimeDBWriter(cfg.Greptime.Endpoint, cfg.Greptime.Database, cfg.Greptime.TablePrefix, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("init GreptimeDB writer: %w", err)
		}
		ws = append(ws, gw)
	}
	if servePrint {
		ws = append(ws, persist.NewJSONStdoutWriter())
	}
	if len(ws) == 1 {
		return db, cleanup, nil
	}
	return persist.NewMultiWriter(ws...), cleanup, nil
}

func serve(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signalContext()
	defer stop()
	ctx = logging.NewContext(ctx, log)

	db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	w, cleanup, err := writers(cfg, db, log)
	if err != nil {
		return err
	}
	defer cleanup()

	events := hub.New(cfg.SubscriberBuffer, cfg.Heartbeat, log)
	fences := geofence.NewIndex(log)
	reg := registry.NewPoller(db, fences, events, cfg.RegistryRefresh, log)
	if err := reg.Refresh(ctx); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	persister := persist.NewPersister(w, cfg.PersistQueue, log)
	svc := ingest.New(ingest.Config{
		HomeTeam:    cfg.HomeTeam,
		RatePeriod:  cfg.RatePeriod,
		Staleness:   cfg.Staleness,
		PruneFactor: cfg.PruneFactor,
	}, ingest.Deps{
		Recorder:  persister,
		Publisher: events,
		Fences:    fences,
		SafeZones: reg,
		Authorize: auth.AllowSubmit,
	}, log)

	var authn *auth.Authenticator
	if cfg.Auth.Secret != "" {
		if authn, err = auth.New(cfg.Auth.Secret); err != nil {
			return err
		}
	} else {
		log.Warn("auth disabled: submissions are accepted without keys")
	}

	srv := api.NewServer(api.Server{
		Ingest:   svc,
		History:  history.NewService(db, log),
		Events:   events,
		Registry: reg,
		Auth:     authn,
		QR:       api.QRTarget{Lat: cfg.QRLat, Lon: cfg.QRLon},
	}, log)

	stopPersist := startPersister(ctx, persister)
	defer stopPersist()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); reg.Run(ctx) }()
	go func() { defer wg.Done(); svc.Run(ctx) }()

	log.Info("skyarena serving", "listen", cfg.Listen, "home_team", cfg.HomeTeam,
		"database", cfg.Database.Type, "fences", fences.Len(), "auth", authn != nil)
	err = srv.Start(ctx, cfg.Listen)
	stop()
	wg.Wait()
	stopPersist()
	log.Info("skyarena stopped", "published", events.Published(),
		"persist_dropped", persister.Dropped(), "persist_failed", persister.Failed())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// startPersister runs p detached from ctx so records enqueued by handlers
// still finishing during shutdown are drained. The returned func cancels it
// and waits for the final flush; calling it again is a no-op.
func startPersister(ctx context.Context, p *persist.Persister) func() {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		p.Run(pctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}
