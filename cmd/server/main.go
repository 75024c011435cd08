package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/identity-service/internal/command"
	"github.com/eaglebank/identity-service/internal/config"
	"github.com/eaglebank/identity-service/internal/db"
	"github.com/eaglebank/identity-service/internal/handler"
	"github.com/eaglebank/identity-service/internal/notifier"
	"github.com/eaglebank/identity-service/internal/query"
	"github.com/eaglebank/identity-service/internal/repository"
	"github.com/eaglebank/identity-service/internal/token"
	"github.com/eaglebank/identity-service/shared/events"
	"github.com/eaglebank/identity-service/shared/logging"
	"github.com/eaglebank/identity-service/shared/middleware"
	"github.com/eaglebank/identity-service/shared/models"
	sharedredis "github.com/eaglebank/identity-service/shared/redis"
	"github.com/eaglebank/identity-service/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel, "identity-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Write store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis: token registry, read model cache, OTP rate limit, event stream
	var (
		registry  token.Registry = token.NewMemoryRegistry()
		viewCache repository.AccountViewCache
		counter   middleware.Counter
		cmdOpts   = []command.Option{command.WithRevokeOnPasswordReset(cfg.RevokeTokensOnPasswordReset)}
	)
	if cfg.RedisAddr != "" {
		redis, err := sharedredis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer redis.Close()

		registry = token.NewRedisRegistry(redis.Client)
		viewCache = sharedredis.NewViewCache[models.AccountView](redis.Client, "account:view:", time.Hour)
		counter = sharedredis.NewWindowCounter(redis.Client, "ratelimit")
		cmdOpts = append(cmdOpts, command.WithPublisher(events.NewPublisher(redis.Client, events.AccountEventsStream, cfg.EventStreamMaxLen)))
	} else {
		logger.Warn("REDIS_ADDR not set: tokens are tracked in process, events and rate limiting are off")
	}

	issuer, err := token.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL, registry)
	if err != nil {
		return err
	}

	otpNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	// --- CQRS wiring ---
	hasher := utils.NewHasher(cfg.BcryptCost)
	readRepo := repository.NewAccountReadRepository(store, viewCache)
	commandSvc := command.NewAccountCommandService(store, readRepo, issuer, hasher, otpNotifier, cmdOpts...)
	querySvc := query.NewAccountQueryService(store, readRepo, issuer, hasher)
	accountHandler := handler.NewAccountHandler(commandSvc, querySvc)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())
	// Client IPs come from RemoteAddr, which ProxyHeaders rewrites when enabled.
	if err := router.SetTrustedProxies(nil); err != nil {
		return err
	}

	mw := handler.Middlewares{Auth: middleware.AuthMiddleware(issuer)}
	if counter != nil {
		mw.OtpLimit = middleware.RateLimitMiddleware(counter, "otp", cfg.OTPRateLimit, cfg.OTPRateWindow)
		mw.VerifyLimit = middleware.RateLimitMiddleware(counter, "otp-verify", cfg.OTPRateLimit, cfg.OTPRateWindow)
	}
	handler.RegisterRoutes(router, accountHandler, mw)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           wrapHTTP(router, cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identity service starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// accountStore is what every store driver provides.
type accountStore interface {
	command.AccountStore
}

func openStore(ctx context.Context, cfg *config.Config) (accountStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresAccountRepository(sqlDB), func() { _ = sqlDB.Close() }, nil

	case config.StoreMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoAccountRepository(client.Database(cfg.MongoDB))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		return repository.NewMemoryAccountRepository(), func() {}, nil
	}
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (notifier.Notifier, error) {
	if cfg.Notifier == config.NotifierSMTP {
		return notifier.NewSMTPNotifier(cfg.SMTPServer, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	return notifier.NewLogNotifier(logger), nil
}

// wrapHTTP applies the gorilla handlers that sit outside gin.
func wrapHTTP(h http.Handler, cfg *config.Config) http.Handler {
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(h)
	}
	if cfg.TrustProxyHeaders {
		h = handlers.ProxyHeaders(h)
	}
	return h
}
