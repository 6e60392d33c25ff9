package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-archive-bot/internal/application"
	"telegram-archive-bot/internal/config"
	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/ports/adapter"
	"telegram-archive-bot/internal/domain/ports/repository"
	pg "telegram-archive-bot/internal/infra/db/postgres"
	httpapi "telegram-archive-bot/internal/infra/http"
	"telegram-archive-bot/internal/infra/i18n"
	"telegram-archive-bot/internal/infra/logging"
	"telegram-archive-bot/internal/infra/metrics"
	red "telegram-archive-bot/internal/infra/redis"
	"telegram-archive-bot/internal/infra/security"
	"telegram-archive-bot/internal/infra/sender"
	tele "telegram-archive-bot/internal/infra/telegram"
	"telegram-archive-bot/internal/infra/worker"
	"telegram-archive-bot/internal/usecase"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, no platform credentials needed")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Schema first: refuse to run against an unmigrated database ----
	if err := pg.RunMigrations(cfg.Database.URL); err != nil {
		if errors.Is(err, domain.ErrSchema) {
			logger.Fatal().Err(err).Msg("database schema unusable, refusing to start")
		}
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis: dedup cache, leader lock, command flood guard ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	dedup := red.NewDedupCache(redisClient, cfg.Redis.TTL)
	locker := red.NewLocker(redisClient)
	flood := red.NewCommandFloodGuard(red.NewRateLimiter(redisClient), cfg.Bot.FloodLimitPerMinute, time.Minute)

	// ---- At-rest encryption, optional ----
	var enc usecase.Encryptor
	if cfg.Security.EncryptionKey != "" {
		svc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption key unusable")
		}
		enc = svc
	} else {
		logger.Warn().Msg("security.encryption_key not set, archiving plaintext")
	}

	// ---- Repositories ----
	convRepo := pg.NewPostgresConversationRepo(pool)
	cursorRepo := pg.NewPostgresCursorRepo(pool)
	outboxRepo := pg.NewPostgresOutboxRepo(pool)
	messageRepo := pg.NewPostgresMessageRepo(pool)
	userRepo := pg.NewPostgresUserRepo(pool)
	txManager := pg.NewTxManager(pool)

	texts, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Str("language", cfg.Bot.Language).Msg("locale load failed")
	}

	// ---- Routing table, validated before anything polls ----
	router := application.BuildRouter(texts)
	if err := router.Validate(application.KnownStates...); err != nil {
		logger.Fatal().Err(err).Msg("routing table invalid")
	}

	// ---- Platform adapter ----
	var bot adapter.BotAdapter
	if cfg.Runtime.Dev {
		bot = tele.NewNoopBotAdapter()
		logger.Info().Msg("dev mode: noop platform adapter")
	} else {
		real, err := tele.NewRealBotAdapter(&cfg.Bot)
		if err != nil {
			logger.Fatal().Err(err).Msg("platform adapter init failed")
		}
		bot = real
	}

	// ---- Outbound sender ----
	snd := sender.NewSender(outboxRepo, bot, &cfg.Sender, logger)
	go func() {
		if err := snd.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("sender stopped")
		}
	}()

	// ---- Engine usecase, watermark seeded at the durable cursor ----
	cur, err := cursorRepo.Load(ctx, repository.NoTX)
	if err != nil {
		logger.Fatal().Err(err).Msg("cursor load failed")
	}
	wm := usecase.NewWatermark(cur.LastUpdateID)
	engineUC := usecase.NewEngineUseCase(
		convRepo, cursorRepo, outboxRepo, messageRepo, userRepo, txManager,
		router, bot, wm,
		dedup, snd, enc, flood, texts,
		cfg.Engine.CommitRetries, logger,
	)
	archiveUC := usecase.NewArchiveUseCase(messageRepo, userRepo, outboxRepo, enc, logger)

	// ---- Update source: long polling, or webhook pushed through HTTP ----
	var source adapter.UpdateSource = bot
	var webhookHandler http.Handler
	if cfg.Bot.Mode == "webhook" && !cfg.Runtime.Dev {
		ws := tele.NewWebhookSource(bot.(*tele.RealBotAdapter), cfg.Bot.WebhookSecret, cfg.Bot.PollBatchSize)
		source = ws
		webhookHandler = ws.Handler()
		logger.Info().Str("path", cfg.Bot.WebhookPath).Msg("webhook mode")
	}

	// ---- HTTP: health, metrics, webhook, admin API ----
	httpSrv := httpapi.NewServer(cfg, archiveUC, webhookHandler, logger)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Run until signal ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info().Str("signal", s.String()).Msg("shutdown requested")
		cancel()
	}()

	engine := application.NewEngine(engineUC, source, worker.NewPool(cfg.Bot.Workers), locker, &cfg.Bot, &cfg.Engine, logger)
	runErr := engine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown failed")
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("engine exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("bye")
}
