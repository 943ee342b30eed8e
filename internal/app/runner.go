package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	clts "tokenwatch/clients"
	"tokenwatch/config"
	"tokenwatch/internal/price"
	"tokenwatch/internal/store"
)

// Runner wires the pipeline together and owns its lifecycle.
type Runner struct {
	clients *clts.Clients
	cfg     *config.Config

	windows  *store.WindowStore
	registry *store.Registry
	ingress  *Ingress
}

func NewRunner(clients *clts.Clients, cfg *config.Config) *Runner {
	return &Runner{
		clients: clients,
		cfg:     cfg,
	}
}

// Run starts the pipeline and blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.clients.Logger
	cfg := r.cfg

	registry, err := store.OpenRegistry(logger, cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	r.registry = registry

	r.windows = store.NewWindowStore(logger, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = r.windows.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return fmt.Errorf("window store unreachable: %w", err)
	}

	stats := NewStats()
	oracle := price.NewOracle(logger, r.clients.Dex, cfg.Price.CacheTTL)
	dispatcher := NewDispatcher(logger, r.clients.Discord, r.clients.Pushover, registry, cfg.Token.Label, stats)

	engine := NewEngine(logger, r.windows, oracle, dispatcher, EngineConfig{
		ChatThresholdUSD:       cfg.Alerts.ChatThresholdUSD,
		SingleThresholdUSD:     cfg.Alerts.SingleThresholdUSD,
		CumulativeThresholdUSD: cfg.Alerts.CumulativeThresholdUSD,
		Window:                 cfg.Alerts.Window,
		FiveSellsEnabled:       cfg.Alerts.FiveSellsEnabled,
		FiveSellsThresholdUSD:  cfg.Alerts.FiveSellsThresholdUSD,
		FiveSellsTrigger:       cfg.Alerts.FiveSellsTrigger,
	}, stats)

	parser := NewParser(logger, cfg.Token.Mint)

	r.ingress = NewIngress(logger, cfg, parser, engine, oracle, dispatcher, registry, r.windows, r.clients.Helius, stats)
	r.ingress.Start()

	scheduler := NewScheduler(logger, r.windows, dispatcher, cfg.Token.Mint)
	go scheduler.Run(ctx)

	logger.Info("pipeline running",
		zap.String("mint", cfg.Token.Mint),
		zap.String("label", cfg.Token.Label),
		zap.Duration("window", cfg.Alerts.Window),
		zap.Bool("filterTracked", cfg.Ingress.FilterTracked),
		zap.Bool("discordEnabled", r.clients.Discord.Enabled()),
		zap.Bool("pushoverEnabled", r.clients.Pushover.Enabled()),
	)

	<-ctx.Done()
	logger.Info("runner shutting down")

	// Stop accepting deliveries first, then let in-flight tasks drain.
	r.ingress.Shutdown(context.Background())

	if err := r.windows.Close(); err != nil {
		logger.Warn("window store close failed", zap.Error(err))
	}
	if err := r.registry.Close(); err != nil {
		logger.Warn("registry close failed", zap.Error(err))
	}

	return nil
}
