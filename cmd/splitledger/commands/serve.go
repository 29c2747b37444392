package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitledger/internal/amount"
	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/postgres"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

// backend is a store that can report its health.
type backend interface {
	storage.Store
	Ping(ctx context.Context) error
}

func serveCmd() *cobra.Command {
	var (
		addr   string
		dbPath string
		seed   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, seed)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides DB_PATH)")
	cmd.Flags().BoolVar(&seed, "seed", false, "create demo members and a group on startup")
	return cmd
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	if cfg.DBDriver == config.DriverPostgres {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.DBDriver)
		return store, nil
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("Storage initialized", "driver", cfg.DBDriver, "database", cfg.DBPath)
	return store, nil
}

func serve(ctx context.Context, cfg *config.Config, seed bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		return err
	}
	defer store.Close()

	if seed {
		if err := seedDemo(ctx, store); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	sinks := []events.Sink{
		events.NewNotificationSink(store, amount.Formatter(cfg.Currency).Format),
		events.LogSink{Logger: slog.Default()},
	}
	var publisher *events.RedisPublisher
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		publisher = events.NewRedisPublisher(client, events.DefaultBreakerSettings, slog.Default())
		sinks = append(sinks, publisher)
		slog.Info("Publishing events to redis")
	}
	dispatcher := events.NewDispatcher(cfg.EventBuffer, slog.Default(), sinks...)

	engine := service.Engine{
		Store:      store,
		Aggregator: ledger.NewAggregator(store),
		Executor:   ledger.NewExecutor(store, dispatcher, slog.Default()),
		Workflow:   ledger.NewWorkflow(store, dispatcher, cfg.Policy(), slog.Default()),
		Expenses:   ledger.NewExpenseBook(store, dispatcher, slog.Default()),
	}
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, middleware.RequestLogger, middleware.CORS)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", healthz(store, publisher))
	service.Mount(r, engine,
		middleware.MetricsInterceptor(),
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(),
	)

	// h2c serves HTTP/2 without TLS for Connect clients.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(r, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server failed", "error", err)
			return err
		}
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Warn("Pending events dropped at shutdown", "error", err)
	}
	return nil
}

// healthz reports store connectivity and, when configured, the state of the
// redis breaker. A failing store makes the instance unhealthy; an open breaker
// does not.
func healthz(store backend, publisher *events.RedisPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "store": "ok"}
		code := http.StatusOK
		if err := store.Ping(ctx); err != nil {
			status["status"] = "unavailable"
			status["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if publisher != nil {
			status["events"] = publisher.State().String()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
