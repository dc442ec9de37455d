package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/api"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/auth"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge/notify"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/database"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/detect"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/seed"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the shop and its challenge detection engine",
	Long: `Start the HTTP server.

Serves the shop API, the challenge catalog at /api/challenges and the
live scoreboard feed at /ws/scoreboard.

Example:
  crookedcart serve --port 3000
  crookedcart serve --config config.yaml
`,
	RunE: runServe,
}

var (
	servePort int
	serveHost string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck
	log = log.WithComponent("serve")

	ctx := context.Background()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer tel.Close() //nolint:errcheck

	store, err := database.NewStore(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close() //nolint:errcheck

	if cfg.Database.Driver == "sqlite3" {
		log.Warnw("Using SQLite database",
			"warning", "SQLite has concurrency limitations",
			"recommendation", "Use PostgreSQL for shared deployments",
		)
	}

	authSvc, err := auth.NewService(cfg.Security.JWTKeyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	registry := challenge.NewRegistry()
	tracker := challenge.NewTracker(registry, store, log)

	hub := notify.NewHub(log)
	defer hub.Close()
	tracker.AddNotifier(hub)
	tracker.AddNotifier(telemetryNotifier{tel})

	var redisPub *notify.RedisPublisher
	if cfg.Redis.Enabled {
		redisPub = notify.NewRedisPublisher(cfg.Redis, log)
		defer redisPub.Close() //nolint:errcheck
		tracker.AddNotifier(redisPub)
	}

	if err := seed.LoadChallenges(ctx, registry, store, cfg.Challenges, log); err != nil {
		return fmt.Errorf("failed to load challenge catalog: %w", err)
	}
	if err := seed.LoadFixtures(ctx, store, log); err != nil {
		return fmt.Errorf("failed to seed fixtures: %w", err)
	}

	dispatcher := detect.NewDispatcher(tracker, log)
	dispatcher.SetEnvironment(cfg.Challenges.Environment)
	detect.RegisterDefaults(dispatcher, detect.Deps{
		Scanner:           store,
		Products:          store,
		Feedback:          store,
		Verifier:          authSvc,
		Log:               log,
		Clock:             detect.SystemClock,
		Cfg:               cfg.Challenges,
		TamperProduct:     seed.TamperProductName,
		TamperOriginalURL: seed.TamperOriginalURL,
		BlueprintFile:     seed.BlueprintFile,
		PastebinKeywords:  seed.PastebinKeywords,
	})

	timing := detect.NewTimingProbe(tracker, challenge.KeyNoSQLCommand, detect.SystemClock)

	handler := api.NewHandler(store, tracker, dispatcher, authSvc, timing, log, cfg)
	router := api.NewRouter(handler, dispatcher, authSvc, hub, log, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Infow("Server listening",
			"addr", srv.Addr,
			"detectors_pre_route", len(dispatcher.Detectors(detect.PreRoute)),
			"detectors_post_auth", len(dispatcher.Detectors(detect.PostAuth)),
			"detectors_post_response", len(dispatcher.Detectors(detect.PostResponse)),
			"detectors_post_mutation", len(dispatcher.Detectors(detect.PostMutation)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Infow("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	// Drain background detector evaluations and pending solve writes
	// before the store closes.
	dispatcher.Flush()

	log.Infow("Server stopped")
	return nil
}

// telemetryNotifier bridges solve notifications into the trace
// exporter.
type telemetryNotifier struct {
	tel telemetry.Telemetry
}

func (t telemetryNotifier) ChallengeSolved(n challenge.Notification) {
	t.tel.RecordSolve(n.Key, n.Category)
}
