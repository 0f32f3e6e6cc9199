package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reliefops/redzone/internal/api/rest"
	"github.com/reliefops/redzone/internal/config"
	"github.com/reliefops/redzone/internal/logger"
	zonesrepo "github.com/reliefops/redzone/internal/repository/zones"
	"github.com/reliefops/redzone/internal/store"
	memorystore "github.com/reliefops/redzone/internal/store/memory"
	redisstore "github.com/reliefops/redzone/internal/store/redis"
)

// Options controls the redzone-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override.
	ListenAddress string
	// ZonesDB provides an optional zone database path override.
	ZonesDB string
}

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Run starts the coordination server and blocks until the context is
// cancelled or the server fails. Configuration is loaded first, then the
// shared store and the durable zone repository are opened, persisted zones
// are republished into the live store, and the HTTP API starts serving.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "redzone-server")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	listenAddress := settings.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	zonesDB := settings.ZonesDB
	if opts.ZonesDB != "" {
		zonesDB = opts.ZonesDB
	}

	st, err := openStore(ctx, settings)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	defer func() {
		_ = st.Close()
	}()

	repo, err := zonesrepo.Open(ctx, zonesDB)
	if err != nil {
		return fmt.Errorf("open zones repository: %w", err)
	}

	defer func() {
		_ = repo.Close()
	}()

	// Durable zone definitions survive restarts; the live store starts from
	// them so subscribers never observe a half-empty node.
	if err := rest.PublishZones(ctx, repo, st); err != nil {
		return fmt.Errorf("republish zones: %w", err)
	}

	api := rest.NewServer(rest.Options{
		Store:          st,
		Zones:          repo,
		TravelSpeedKmh: settings.TravelSpeedKmh,
		AllowedOrigins: settings.AllowedOrigins,
	})

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	httpServer := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: settings.Timeout,
	}

	logger.InfoKV(ctx, "Redzone server listening",
		"listen_address", lis.Addr().String(),
		"store_backend", settings.StoreBackend,
		"zones_db", zonesDB)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(ctx, "HTTP server stopped")

	return nil
}

// openStore builds the store backend the configuration selects.
func openStore(ctx context.Context, settings *config.Config) (store.Store, error) {
	switch settings.StoreBackend {
	case config.StoreBackendRedis:
		return redisstore.NewStore(ctx, redisstore.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		})
	default:
		return memorystore.NewStore(), nil
	}
}
