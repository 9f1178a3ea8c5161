package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spadesk/internal/api"
	"spadesk/internal/availability"
	"spadesk/internal/catalog"
	"spadesk/internal/config"
	"spadesk/internal/db"
	"spadesk/internal/draftsync"
	"spadesk/internal/events"
	"spadesk/internal/importer"
	"spadesk/internal/metrics"
	"spadesk/internal/notify"
	"spadesk/internal/report"
	"spadesk/internal/roster"
	"spadesk/internal/schedule"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Secrets such as TELEGRAM_BOT_TOKEN may come from .env; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SPADESK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalog")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		rdb     *redis.Client
		toggles availability.ToggleStore = availability.NewMemoryStore()
		locker  draftsync.Locker
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		toggles = availability.NewFailoverStore(availability.NewRedisStore(rdb, cfg.ToggleTTL()), toggles, &logger)
		locker = draftsync.NewRedisLocker(rdb, cfg.LockTTL())
	}

	bus := events.NewEventBus()
	bus.OnError(func(e events.Event, err error) {
		logger.Error().Err(err).Str("event", e.Type).Msg("event handler failed")
	})

	scheduleService := schedule.NewService(database, cat, bus, cfg.Booking.RetryAttempts, &logger)
	syncService := draftsync.NewService(database, cat, bus, draftsync.Options{
		Policy:        draftsync.Policy(cfg.Booking.PublishWithoutMeta),
		RetryAttempts: cfg.Booking.RetryAttempts,
		Locker:        locker,
	}, &logger)
	rosterService := roster.NewService(database, bus, logger)
	if _, err := rosterService.SeedStaff(ctx, cfg.Staff); err != nil {
		logger.Fatal().Err(err).Msg("seed staff")
	}
	overlay := availability.NewOverlay(database, toggles, &logger)
	reports := report.NewGenerator(database, cat, &logger)

	if cfg.TelegramEnabled() {
		bot, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot")
		}
		notifier := notify.NewNotifier(bot, notify.Config{ChatIDs: cfg.Telegram.ManagerChatIDs}, logger)
		notifier.Subscribe(bus)
		go notifier.Run(ctx)
		go report.NewScheduler(reports, notifier, &logger).Start(ctx)
	} else {
		logger.Warn().Msg("telegram.bot_token not set, manager notifications disabled")
	}

	var sheets *importer.SheetsSource
	if cfg.Import.SpreadsheetID != "" {
		creds, err := importer.CredentialsOption(ctx, cfg.Import.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("load google credentials")
		}
		sheets, err = importer.NewSheetsSource(ctx, cfg.Import.SpreadsheetID, cfg.Import.Range, creds)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sheets client")
		}
	}

	backupService := db.NewBackupService(database, cfg.BackupConfig(), &logger)
	go backupService.Start(ctx)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(cfg.HTTP.Address, api.Deps{
		Catalog:      cat,
		Bookings:     database,
		Schedule:     scheduleService,
		Sync:         syncService,
		Availability: overlay,
		Roster:       rosterService,
		Reports:      reports,
		Sheets:       sheets,
	}, api.Limits{RPS: cfg.HTTP.RateLimitRPS, Burst: cfg.HTTP.RateLimitBurst}, &logger)

	logger.Info().Msg("spadesk started")
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("API server error")
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		// Toggles fall back to memory, so a down redis only degrades readiness in the log.
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				logger.Warn().Err(err).Msg("redis ping failed")
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

func serve(ctx context.Context, addr string, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
