// Package discord is the chat channel: broadcast announcements to the
// configured channel and direct messages to summary subscribers.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"tokenwatch/config"
)

// Client sends chat messages. A missing bot token disables the client; sends
// return an error the caller logs.
type Client struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, chat channel disabled")
		return &Client{
			logger:    logger,
			channelID: cfg.Discord.ChannelID,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &Client{
			logger:    logger,
			channelID: cfg.Discord.ChannelID,
		}
	}

	logger.Info("discord client initialized",
		zap.String("channelID", cfg.Discord.ChannelID),
	)

	return &Client{
		logger:    logger,
		session:   session,
		channelID: cfg.Discord.ChannelID,
	}
}

// Enabled reports whether the client holds a live session.
func (c *Client) Enabled() bool {
	return c.session != nil
}

// Broadcast posts a message to the configured channel.
func (c *Client) Broadcast(ctx context.Context, message string) error {
	if c.session == nil {
		return fmt.Errorf("discord not configured")
	}
	if c.channelID == "" {
		return fmt.Errorf("discord channel id not configured")
	}

	_, err := c.session.ChannelMessageSend(c.channelID, message, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send channel message: %w", err)
	}
	return nil
}

// DirectMessage DMs a single user, opening the DM channel on demand.
func (c *Client) DirectMessage(ctx context.Context, userID, message string) error {
	if c.session == nil {
		return fmt.Errorf("discord not configured")
	}

	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}

	_, err = c.session.ChannelMessageSend(ch.ID, message, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// Close tears down the session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
