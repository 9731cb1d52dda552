package config

import (
	"github.com/atlanticdynamic/usercode/internal/usercode/delegation"
	"github.com/atlanticdynamic/usercode/internal/usercode/engine"
)

var _ engine.BotDirectory = (*Config)(nil)

func (c *Config) bot(botID string) (Bot, bool) {
	for _, b := range c.Bots {
		if b.ID == botID {
			return b, true
		}
	}
	return Bot{}, false
}

// BotExists reports whether botID is configured.
func (c *Config) BotExists(botID string) bool {
	_, ok := c.bot(botID)
	return ok
}

// WorkspaceID returns the workspace of a bot, DefaultWorkspace when the bot
// is unknown or names none.
func (c *Config) WorkspaceID(botID string) string {
	if b, ok := c.bot(botID); ok && b.Workspace != "" {
		return b.Workspace
	}
	return DefaultWorkspace
}

// ActionServer returns the remote action server of a bot.
func (c *Config) ActionServer(botID string) (delegation.Server, bool) {
	b, ok := c.bot(botID)
	if !ok || b.ActionServer == "" {
		return delegation.Server{}, false
	}
	for _, s := range c.ActionServers {
		if s.ID == b.ActionServer {
			return delegation.Server{ID: s.ID, BaseURL: s.BaseURL}, true
		}
	}
	return delegation.Server{}, false
}
