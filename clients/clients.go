package clients

import (
	"tokenwatch/clients/dexscreener"
	"tokenwatch/clients/discord"
	"tokenwatch/clients/helius"
	"tokenwatch/clients/pushover"
	"tokenwatch/config"

	"go.uber.org/zap"
)

// Clients bundles the external collaborators the pipeline talks to.
type Clients struct {
	Logger *zap.Logger

	Discord  *discord.Client
	Pushover *pushover.Client
	Dex      *dexscreener.Client
	Helius   *helius.Client
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	return &Clients{
		Logger:   logger,
		Discord:  discord.NewClient(logger, cfg),
		Pushover: pushover.NewClient(logger, cfg),
		Dex:      dexscreener.NewClient(logger, cfg),
		Helius:   helius.NewClient(logger, cfg),
	}
}

// Close releases long-lived client resources.
func (c *Clients) Close() error {
	return c.Discord.Close()
}
