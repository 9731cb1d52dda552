// Package config loads the TOML configuration of the user code runtime.
//
// A config file names the data directory holding user scripts, the sandbox
// and invalidation policy, the remote action servers and the bots using them.
// String fields tagged env_interpolation accept ${VAR} and ${VAR:default}.
package config

import (
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/delegation"
	"github.com/atlanticdynamic/usercode/internal/usercode/engine"
	"github.com/atlanticdynamic/usercode/internal/usercode/executor"
	"github.com/atlanticdynamic/usercode/internal/usercode/hooks"
	"github.com/atlanticdynamic/usercode/internal/usercode/registry"
)

// DefaultWorkspace is the workspace of bots that do not name one.
const DefaultWorkspace = "default"

// Config is the root configuration.
type Config struct {
	LogLevel  LogLevel  `toml:"log_level"`
	LogFormat LogFormat `toml:"log_format"`
	LogOutput string    `toml:"log_output" env_interpolation:"yes"`

	DataDir string `toml:"data_dir" env_interpolation:"yes"`
	// AppSecret signs the credentials given to scripts and action servers.
	AppSecret string `toml:"app_secret" env_interpolation:"yes"`

	Sandbox       SandboxConfig      `toml:"sandbox"`
	Invalidation  InvalidationConfig `toml:"invalidation"`
	Delegation    DelegationConfig   `toml:"delegation"`
	ActionServers []ActionServer     `toml:"action_servers" env_interpolation:"yes"`
	Modules       []Module           `toml:"modules" env_interpolation:"yes"`
	Bots          []Bot              `toml:"bots"`
	Lifecycles    []Lifecycle        `toml:"lifecycles"`
	Tasks         TasksConfig        `toml:"tasks" env_interpolation:"yes"`
	Server        ServerConfig       `toml:"server" env_interpolation:"yes"`
}

// SandboxConfig controls local execution.
type SandboxConfig struct {
	DisableGlobal     bool     `toml:"disable_global"`
	DisableBots       bool     `toml:"disable_bots"`
	ActionTimeout     Duration `toml:"action_timeout"`
	MaxSteps          uint64   `toml:"max_steps"`
	TrustedPrefixes   []string `toml:"trusted_prefixes"`
	SecretEnvPatterns []string `toml:"secret_env_patterns"`
}

// InvalidationConfig controls cache invalidation on script changes.
type InvalidationConfig struct {
	Debounce Duration `toml:"debounce"`
	// Watch enables the file watcher of the server command. Nil means true.
	Watch *bool `toml:"watch"`
}

// DelegationConfig controls runs on remote action servers.
type DelegationConfig struct {
	Audience       string   `toml:"audience"`
	RequestTimeout Duration `toml:"request_timeout"`
	TokenTTL       Duration `toml:"token_ttl"`
}

// ActionServer is a remote action server bots can delegate to.
type ActionServer struct {
	ID      string `toml:"id"`
	BaseURL string `toml:"base_url" env_interpolation:"yes"`
}

// Module is an installed extension module.
type Module struct {
	Name string `toml:"name"`
	Root string `toml:"root" env_interpolation:"yes"`
}

// Bot is a configured bot.
type Bot struct {
	ID        string `toml:"id"`
	Workspace string `toml:"workspace"`
	// ActionServer references an ActionServer by ID. Empty runs locally.
	ActionServer string `toml:"action_server"`
}

// Lifecycle overrides the policy of a hook lifecycle.
type Lifecycle struct {
	Name         string   `toml:"name"`
	Timeout      Duration `toml:"timeout"`
	ThrowOnError bool     `toml:"throw_on_error"`
}

// TasksConfig configures delegation task persistence.
type TasksConfig struct {
	// Database is the SQLite file. Empty keeps tasks in memory.
	Database string `toml:"database" env_interpolation:"yes"`
}

// ServerConfig configures the remote action server.
type ServerConfig struct {
	// Listen is the address of the action server. Empty disables it.
	Listen string `toml:"listen" env_interpolation:"yes"`
}

// Logging returns the logging settings.
func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{Format: c.LogFormat, Level: c.LogLevel, Output: c.LogOutput}
}

// SandboxPolicy returns the operator switches disabling the sandbox.
func (c *Config) SandboxPolicy() engine.SandboxPolicy {
	return engine.SandboxPolicy{
		DisableGlobal: c.Sandbox.DisableGlobal,
		DisableBots:   c.Sandbox.DisableBots,
	}
}

// ActionTimeout returns the sandbox timeout of actions.
func (c *Config) ActionTimeout() time.Duration {
	return c.Sandbox.ActionTimeout.orDefault(executor.DefaultTimeout)
}

// TrustedPrefixes returns the name prefixes of trusted scripts.
func (c *Config) TrustedPrefixes() []string {
	if c.Sandbox.TrustedPrefixes == nil {
		return registry.DefaultTrustedPrefixes
	}
	return c.Sandbox.TrustedPrefixes
}

// SecretEnvPatterns returns the environment variable patterns hidden from scripts.
func (c *Config) SecretEnvPatterns() []string {
	if c.Sandbox.SecretEnvPatterns == nil {
		return executor.DefaultSecretPatterns
	}
	return c.Sandbox.SecretEnvPatterns
}

// Debounce returns the invalidation window.
func (c *Config) Debounce() time.Duration {
	return c.Invalidation.Debounce.orDefault(registry.DefaultDebounce)
}

// WatchEnabled reports whether script changes are watched.
func (c *Config) WatchEnabled() bool {
	return c.Invalidation.Watch == nil || *c.Invalidation.Watch
}

// Audience returns the audience of delegation credentials.
func (c *Config) Audience() string {
	if c.Delegation.Audience == "" {
		return delegation.DefaultAudience
	}
	return c.Delegation.Audience
}

// RequestTimeout returns the timeout of delegated runs.
func (c *Config) RequestTimeout() time.Duration {
	return c.Delegation.RequestTimeout.orDefault(delegation.DefaultRequestTimeout)
}

// TokenTTL returns the lifetime of delegation credentials.
func (c *Config) TokenTTL() time.Duration {
	return c.Delegation.TokenTTL.orDefault(delegation.DefaultTokenTTL)
}

// ModuleRoots maps extension module names to their root directory.
func (c *Config) ModuleRoots() map[string]string {
	if len(c.Modules) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.Modules))
	for _, m := range c.Modules {
		out[m.Name] = m.Root
	}
	return out
}

// LifecycleOptions returns the hook lifecycle overrides.
func (c *Config) LifecycleOptions() map[string]hooks.Options {
	out := make(map[string]hooks.Options, len(c.Lifecycles))
	for _, l := range c.Lifecycles {
		out[l.Name] = hooks.Options{
			Timeout:      l.Timeout.orDefault(hooks.DefaultTimeout),
			ThrowOnError: l.ThrowOnError,
		}
	}
	return out
}
