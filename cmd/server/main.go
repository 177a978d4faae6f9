package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taller/internal/api"
	"taller/internal/booking"
	"taller/internal/cache"
	"taller/internal/config"
	"taller/internal/db"
	"taller/internal/events"
	"taller/internal/metrics"
	"taller/internal/pgstore"
	"taller/internal/report"
)

// workshopStore is what both database backends provide.
type workshopStore interface {
	booking.Store
	EnsureDefaults(ctx context.Context) error
	SyncWorkshopFromConfig(ctx context.Context, cfg *config.WorkshopConfig) error
}

type pinger func(ctx context.Context) error

func main() {
	cfg, err := config.Load(os.Getenv("TALLER_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	store, ping, closeStore, err := openStore(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open database error")
	}
	defer closeStore()

	if err := store.EnsureDefaults(ctx); err != nil {
		logger.Fatal().Err(err).Msg("seed defaults error")
	}

	bus := events.NewEventBus()

	var rdb *redis.Client
	var dayCache booking.DayCache
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		c := cache.NewAvailabilityCache(rdb, cfg.CacheTTL(), &logger)
		c.Subscribe(bus)
		dayCache = c
		logger.Info().Str("addr", cfg.Redis.Address).Dur("ttl", cfg.CacheTTL()).Msg("availability cache enabled")
	}

	rules := booking.Rules{
		MinAdvance: cfg.BookingMinAdvance(),
		MaxAdvance: cfg.BookingMaxAdvance(),
	}
	svc := booking.NewService(store, bus, dayCache, rules, loc, &logger)

	_, err = config.WatchWorkshop(ctx, cfg.WorkshopConfigPath, 30*time.Second, &logger, func(wc *config.WorkshopConfig) error {
		if err := store.SyncWorkshopFromConfig(ctx, wc); err != nil {
			return err
		}
		if err := bus.PublishJSON(events.CalendarChanged, events.CalendarPayload{Reason: "workshop config"}); err != nil {
			logger.Warn().Err(err).Msg("calendar change handler failed")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("path", cfg.WorkshopConfigPath).Msg("workshop config not found, using stored schedule")
		} else {
			logger.Fatal().Err(err).Msg("load workshop config error")
		}
	}

	if sqlite, ok := store.(*db.DB); ok {
		snapshots := db.NewSnapshotter(sqlite, db.BackupConfig{
			Enabled:       cfg.Backup.Enabled,
			Interval:      time.Duration(cfg.Backup.IntervalHours) * time.Hour,
			StoragePath:   cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go snapshots.Run(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, ping, rdb, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewServer(svc, report.NewBuilder(svc, &logger), api.Options{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		BookingsPerMinute: cfg.Booking.PerClientPerMin,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}, &logger)

	logger.Info().Str("timezone", loc.String()).Str("driver", cfg.Database.Driver).Msg("workshop service started")
	if err := server.Run(ctx, cfg.Server.Address); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("workshop service stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Logging.JSON {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (workshopStore, pinger, func(), error) {
	loc := cfg.Location()
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		ctxOpen, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := pgstore.Open(ctxOpen, cfg.Database.URL, loc)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info().Msg("using postgres store")
		return s, s.Ping, s.Close, nil
	default:
		d, err := db.NewDB(cfg.Database.Path, loc)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info().Str("path", cfg.Database.Path).Msg("using sqlite store")
		return d, d.PingContext, func() { _ = d.Close() }, nil
	}
}

func startHealthServer(ctx context.Context, port int, ping pinger, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := ping(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, fmt.Sprintf(":%d", port), mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, fmt.Sprintf(":%d", port), mux, "metrics", logger)
}

func serve(ctx context.Context, addr string, h http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
