package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lumitrade/aiquorum/internal/cache"
	"github.com/lumitrade/aiquorum/internal/config"
	"github.com/lumitrade/aiquorum/internal/consensus"
	httpapi "github.com/lumitrade/aiquorum/internal/interfaces/http"
	"github.com/lumitrade/aiquorum/internal/metrics"
	sig "github.com/lumitrade/aiquorum/internal/signal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the consensus engine over HTTP. SIGHUP reloads the
configuration and purges the signal cache; SIGINT/SIGTERM shut down
gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// reloadableEngine swaps the engine atomically on config reload so in-flight
// requests keep the engine they started with.
type reloadableEngine struct {
	ptr atomic.Pointer[consensus.Engine]
}

func (r *reloadableEngine) GenerateSignal(ctx context.Context, req *sig.SignalRequest) *sig.ConsensusSignal {
	return r.ptr.Load().GenerateSignal(ctx, req)
}

func (r *reloadableEngine) ProviderStatus() []consensus.ProviderStatus {
	return r.ptr.Load().ProviderStatus()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	m := metrics.New()
	store := buildStore(cfg)
	engine, err := consensus.New(cfg, store, m)
	if err != nil {
		return err
	}

	holder := &reloadableEngine{}
	holder.ptr.Store(engine)
	bootRedis := cfg.Redis

	server := httpapi.NewServer(cfg.Server, holder, store, m)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-errCh:
			return err
		case s := <-signals:
			if s == syscall.SIGHUP {
				reload(holder, store, m, bootRedis)
				continue
			}
			log.Info().Str("signal", s.String()).Msg("Shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		}
	}
}

// reload re-reads the configuration and replaces the engine. The cache is
// purged: cached signals do not survive a configuration change. The cache
// backend itself is fixed at boot; changed redis settings need a restart.
func reload(holder *reloadableEngine, store cache.Store, m *metrics.Metrics, bootRedis config.RedisConfig) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("Config reload failed, keeping previous configuration")
		return
	}
	if cfg.Redis != bootRedis {
		log.Warn().Str("addr", cfg.Redis.Addr).
			Msg("Redis cache settings changed; the cache backend is fixed at boot, restart to apply")
	}
	engine, err := consensus.New(cfg, store, m)
	if err != nil {
		log.Error().Err(err).Msg("Engine rebuild failed, keeping previous configuration")
		return
	}
	store.Purge()
	holder.ptr.Store(engine)
	log.Info().Msg("Configuration reloaded, signal cache purged")
}

func buildStore(cfg *config.Config) cache.Store {
	if cfg.Redis.Addr != "" {
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis signal cache")
		return cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.CacheTTL())
	}
	return cache.NewMemory(cfg.AI.SignalCacheEntries, cfg.CacheTTL())
}
