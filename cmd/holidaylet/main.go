package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"holidaylet/internal/api"
	"holidaylet/internal/booking"
	"holidaylet/internal/bot"
	"holidaylet/internal/config"
	"holidaylet/internal/database"
	"holidaylet/internal/events"
	"holidaylet/internal/importer"
	"holidaylet/internal/metrics"
	"holidaylet/internal/notify"
	"holidaylet/internal/pricing"
	"holidaylet/shared/access"
	"holidaylet/shared/audit"
	"holidaylet/shared/reminders"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	configPath := os.Getenv("HOLIDAYLET_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.EnsureDirs(); err != nil {
		logger.Fatal().Err(err).Msg("failed to create data directories")
	}
	policy, err := cfg.StayPolicy()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid stay policy")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.Check{"db": db.Ping}

	var locker booking.Locker
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		locker = booking.NewRedisLocker(rdb, cfg.Redis.LockKey, cfg.LockTTL())
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info().Str("addr", cfg.Redis.Address).Msg("using Redis writer lock")
	} else {
		locker = booking.NewMutexLocker()
	}

	bus := events.NewEventBus(&logger)

	bookings := booking.NewService(db, locker, policy, bus, &logger)

	var reporter audit.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.OwnerChatID != 0 {
		tg, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create telegram bot")
		}
		tg.Debug = cfg.Telegram.Debug
		logger.Info().Str("bot", tg.Self.UserName).Msg("owner notifications enabled")

		n := notify.NewNotifier(tg, notify.Config{ChatID: cfg.Telegram.OwnerChatID}, &logger)
		n.Subscribe(bus)
		go n.Run(ctx)
		reporter = n

		owner, err := bot.New(tg, bookings, cfg.Telegram.OwnerChatID, loc, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create owner bot")
		}
		go owner.Start(ctx)

		if cfg.Digest.Enabled {
			digest, err := reminders.NewScheduler(reminders.SchedulerConfig{
				Timezone:    cfg.Server.Timezone,
				DailyHour:   cfg.Digest.Hour,
				DailyMinute: cfg.Digest.Minute,
			}, owner.SendArrivalDigest, &logger)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to create digest scheduler")
			}
			go digest.Start(ctx)
			defer digest.Stop()
		}
	} else {
		logger.Info().Msg("telegram not configured, owner notifications disabled")
	}

	reconciler := importer.NewReconciler(db, locker, bus, cfg.Import.ChunkSize, &logger)
	resolver := pricing.NewResolver(db, &logger)
	auth := access.NewService(access.Config{
		AdminPassword: cfg.Auth.AdminPassword,
		SessionSecret: cfg.Auth.SessionSecret,
		SessionTTL:    cfg.SessionTTL(),
		SecureCookie:  cfg.Auth.SecureCookie,
	}, logger)
	if !auth.Enabled() {
		logger.Warn().Msg("auth.admin_password is empty, owner login disabled")
	}

	auditService := audit.NewService(db, nil, reporter, &logger)
	auditService.Start()
	defer auditService.Stop()

	backups := database.NewBackupService(db, database.BackupConfig{
		Enabled:   cfg.Backup.Enabled,
		Dir:       cfg.Backup.Path,
		Interval:  cfg.BackupInterval(),
		Retention: cfg.BackupRetention(),
	}, &logger)
	go backups.Start(ctx)

	err = config.WatchRates(ctx, cfg.Rates.SeedPath, cfg.RatesWatchInterval(), &logger, func(rc *config.RatesConfig) {
		if err := db.SyncRatesFromConfig(ctx, rc); err != nil {
			logger.Error().Err(err).Msg("failed to sync rates from config")
		}
	})
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info().Str("path", cfg.Rates.SeedPath).Msg("no rates seed file, rates managed through the API only")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to load rates seed")
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	perSecond, burst := cfg.GuestRate()
	server := api.NewHTTPServer(api.Config{
		Address:        cfg.Server.Address,
		RequestTimeout: cfg.RequestTimeout(),
		GuestPerSecond: perSecond,
		GuestBurst:     burst,
		Location:       loc,
	}, api.Deps{
		Bookings: bookings,
		Importer: reconciler,
		Rates:    db,
		Quotes:   resolver,
		Exporter: auditService,
		Auth:     auth,
		Checks:   checks,
	}, &logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown error")
		}
	}()

	logger.Info().Msg("holidaylet started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("HTTP server error")
		stop()
	}
	logger.Info().Msg("holidaylet stopped")
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
