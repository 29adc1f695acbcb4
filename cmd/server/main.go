package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/audit"
	"github.com/inzo/orchestrator-go/internal/chain"
	"github.com/inzo/orchestrator-go/internal/config"
	"github.com/inzo/orchestrator-go/internal/database"
	"github.com/inzo/orchestrator-go/internal/events"
	"github.com/inzo/orchestrator-go/internal/gateway"
	"github.com/inzo/orchestrator-go/internal/handler"
	"github.com/inzo/orchestrator-go/internal/jobs"
	"github.com/inzo/orchestrator-go/internal/middleware"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/redis"
	"github.com/inzo/orchestrator-go/internal/repository"
	"github.com/inzo/orchestrator-go/internal/service"
	"github.com/inzo/orchestrator-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	settings, err := service.SettingsFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid workflow settings")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	store, closeStore := openStore(cfg, redisClient)
	defer closeStore()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		publisher = natsPublisher
		log.Info().Msg("nats connected")
	}
	defer publisher.Close()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), config.GatewayTimeout)
	ledger, err := chain.Dial(dialCtx, chain.Config{
		RPCURL:      cfg.RPCURL,
		OracleKey:   cfg.OraclePrivateKey,
		DeployerKey: cfg.DeployerPrivateKey,
		Addresses: chain.Addresses{
			PolicyLedger: cfg.PolicyLedgerAddr,
			OracleRelay:  cfg.OracleRelayAddress,
			Token:        cfg.TokenAddress,
			FundManager:  cfg.FundManagerAddress,
		},
		TxTimeout: config.LedgerTxTimeout,
	})
	dialCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to ledger")
	}
	defer ledger.Close()
	log.Info().Str("rpc", cfg.RPCURL).Msg("ledger connected")

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	deps := service.Deps{
		Store:         store,
		Ledger:        ledger,
		Wallets:       chain.KeyGenerator{},
		Identity:      gateway.NewIdentityClient(cfg.PersonaBaseURL, cfg.PersonaAPIKey, cfg.PersonaVersion, config.GatewayTimeout),
		Conversations: gateway.NewConversationClient(cfg.TavusBaseURL, cfg.TavusAPIKey, config.GatewayTimeout),
		Oracle:        gateway.NewOracleClient(cfg.OracleEndpoint, config.GatewayTimeout),
		Notifier:      broker,
		Audit:         audit.NewRecorder(publisher),
		Settings:      settings,
	}

	var limiter middleware.UserLimiter = middleware.NewRateLimiter()
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
	}

	chatHandler := handler.NewChatHandler(handler.Workflows{
		KYC:     service.NewKYCService(deps),
		Policy:  service.NewPolicyService(deps),
		Premium: service.NewPremiumService(deps),
		Claim:   service.NewClaimService(deps),
		Wallet:  service.NewWalletService(deps),
		Help: func(ctx context.Context, user model.UserID) {
			service.Help(ctx, deps, user)
		},
	}, store, broker, limiter, cfg.RateLimitPerMin)
	eventsHandler := handler.NewEventsHandler(broker)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	signatureMiddleware := middleware.NewWebhookSignatureMiddleware(cfg.WebhookSecret)
	bridgeAuthMiddleware := middleware.NewBridgeAuthMiddleware(cfg.BridgeTokenHash)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"timestamp":     time.Now().UnixMilli(),
			"sessionStore":  cfg.SessionStore,
			"bridgeClients": broker.ClientCount(sse.OutboundTopic),
		})
	})

	r.Route("/chat", func(r chi.Router) {
		r.With(
			chimiddleware.Timeout(config.ServerRequestTimeout),
			bodyLimitMiddleware.Handler,
			signatureMiddleware.Handler,
		).Post("/webhook", chatHandler.Webhook)

		r.With(bridgeAuthMiddleware.Handler).Get("/events", eventsHandler.ServeHTTP)
	})

	sweepJob := jobs.NewSweepJob(store, cfg.ApplicationTTL(), config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("sessionStore", cfg.SessionStore).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := chatHandler.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("in-flight chat events abandoned at shutdown")
	}

	log.Info().Msg("server stopped")
}

// openStore builds the session store named by SESSION_STORE.
func openStore(cfg *config.Config, redisClient *redis.Client) (repository.SessionStore, func()) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		store, err := repository.NewRedisStore(redisClient.Client, cfg.SessionTTL(), cfg.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create redis session store")
		}
		return store, func() {}

	case config.StorePostgres:
		ctx := context.Background()
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}

		store, err := repository.NewPostgresStore(db, cfg.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create postgres session store")
		}
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to create session schema")
		}
		log.Info().Msg("database connected")
		return store, func() { db.Close() }

	default:
		log.Warn().Msg("using in-memory session store, sessions are lost on restart")
		return repository.NewMemoryStore(), func() {}
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
