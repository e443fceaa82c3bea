package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/registration"
	"github.com/go-auth-nosql/internal/application/revocation"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/infrastructure/mail"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	redisinfra "github.com/go-auth-nosql/internal/infrastructure/redis"
	snsinfra "github.com/go-auth-nosql/internal/infrastructure/sns"
	"github.com/go-auth-nosql/internal/obs"
	transporthttp "github.com/go-auth-nosql/internal/transport/http"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	"github.com/joho/godotenv"
)

// kvStore is what the redis and in-memory backends have in common.
type kvStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// stores splits ephemeral state the way the redis deployment does: one logical
// database each for limiter counters, the blacklist and OTP state.
type stores struct {
	limiter, blacklist, otp kvStore
	close                   func()
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, reading from environment")
	}

	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.close()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	credentials := dynamo.NewCredentialRepo(dynamoClient, cfg.DynamoTables.Credentials)
	employees := dynamo.NewEmployeeRepo(dynamoClient, cfg.DynamoTables.Employees)

	backend, err := mail.New(ctx, cfg)
	if err != nil {
		return err
	}
	mailer := mail.NewAsync(backend, 10*time.Second)

	events, err := snsinfra.New(ctx, cfg)
	if err != nil {
		return err
	}

	revoker := revocation.NewService(kv.blacklist, time.Now)
	tokens, err := jwtinfra.NewProvider(cfg, jwtinfra.WithRevocationChecker(revoker))
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}
	if cfg.SecretKey == "" {
		slog.Warn("SECRET_KEY is empty; reset links will not survive a restart")
	}
	signer, err := jwtinfra.NewResetSigner(cfg.SecretKey, cfg.ResetSalt, time.Now)
	if err != nil {
		return err
	}
	policies, err := ratelimit.PoliciesFromConfig(cfg.RateLimits)
	if err != nil {
		return fmt.Errorf("rate limits: %w", err)
	}

	deps := &transporthttp.Deps{
		Registration: registration.NewService(cfg, kv.otp, credentials, employees, mailer, events),
		Sessions:     session.NewService(tokens, revoker, credentials, employees, events),
		Passwords:    password.NewService(cfg, signer, credentials, kv.otp, mailer, events),
		Tokens:       tokens,
		Limiter:      ratelimit.NewLimiter(kv.limiter, time.Now),
		Policies:     policies,
		Metrics:      obs.NewMetrics(),
		Stores:       []handler.Pinger{kv.limiter, kv.blacklist, kv.otp},
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend, "mail", cfg.MailBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	mailer.Wait(shutdownCtx)
	slog.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreBackend == "memory" {
		m := memory.NewStore()
		go m.RunJanitor(ctx, time.Minute)
		slog.Warn("using in-memory store; state is lost on restart and not shared between instances")
		return &stores{limiter: m, blacklist: m, otp: m, close: func() {}}, nil
	}

	var opened []*redisinfra.Store
	open := func(db int) (*redisinfra.Store, error) {
		rdb, err := redisinfra.NewClient(cfg.RedisURL, db)
		if err != nil {
			return nil, err
		}
		s := redisinfra.NewStore(rdb)
		opened = append(opened, s)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis db %d: %w", db, err)
		}
		return s, nil
	}
	closeAll := func() {
		for _, s := range opened {
			if err := s.Close(); err != nil {
				slog.Warn("redis close failed", "err", err)
			}
		}
	}

	limiter, err := open(cfg.RedisDBLimiter)
	if err != nil {
		closeAll()
		return nil, err
	}
	blacklist, err := open(cfg.RedisDBBlacklist)
	if err != nil {
		closeAll()
		return nil, err
	}
	otp, err := open(cfg.RedisDBOTP)
	if err != nil {
		closeAll()
		return nil, err
	}
	return &stores{limiter: limiter, blacklist: blacklist, otp: otp, close: closeAll}, nil
}
