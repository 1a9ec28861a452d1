// Package server wires the tokenauth server: storage backends, the
// identity service and the gRPC endpoint, with graceful shutdown on
// SIGINT/SIGTERM.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tokenauth/internal/logging"
	"github.com/dmitrijs2005/tokenauth/internal/server/auth"
	"github.com/dmitrijs2005/tokenauth/internal/server/config"
	"github.com/dmitrijs2005/tokenauth/internal/server/directory"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokenauth/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/tokenauth/internal/server/grpc"
)

const redisKeyPrefix = "tokenauth:refresh"

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *gs.GRPCServer
	closers []io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	userRepo, tokenRepo, err := app.initStorage(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	codec, err := auth.NewCodec([]byte(c.SecretKey))
	if err != nil {
		app.close()
		return nil, fmt.Errorf("codec init error: %w", err)
	}

	policy := directory.DefaultPasswordPolicy()
	policy.MinLength = c.PasswordMinLength
	dir := directory.New(userRepo, directory.WithPasswordPolicy(policy))

	identity := services.NewIdentityService(dir, tokenRepo, codec, logger.With("module", "identity"), services.Options{
		AccessTokenLifetime:  c.AccessTokenValidityDuration,
		RefreshTokenLifetime: c.RefreshTokenValidityDuration,
		DefaultClaims:        services.DefaultClaims(),
	})

	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, identity, codec)
	return app, nil
}

func (app *App) initStorage(ctx context.Context) (users.Repository, refreshtokens.Repository, error) {
	var (
		userRepo  users.Repository
		tokenRepo refreshtokens.Repository
	)

	switch app.config.StorageBackend {
	case config.StoragePostgres:
		rm := repomanager.NewPostgresRepositoryManager()
		db, err := rm.Open(ctx, app.config.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		app.closers = append(app.closers, db)

		if err := rm.RunMigrations(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("migrations error: %w", err)
		}
		userRepo = rm.Users(db)
		tokenRepo = rm.RefreshTokens(db)
	default:
		app.logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		userRepo = users.NewMemoryRepository()
		tokenRepo = refreshtokens.NewMemoryRepository()
	}

	if app.config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
		app.closers = append(app.closers, rdb)

		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis init error: %w", err)
		}
		tokenRepo = refreshtokens.NewRedisRepository(rdb, redisKeyPrefix)
	}

	return userRepo, tokenRepo, nil
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error(context.Background(), "close error", "error", err.Error())
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// releases storage connections.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close()
	app.logger.Info(context.Background(), "App stopped")
}
