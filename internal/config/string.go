package config

import (
	"fmt"
	"strings"

	"github.com/atlanticdynamic/usercode/internal/fancy"
)

// String returns a pretty-printed tree representation of the config
func (c *Config) String() string {
	return ConfigTree(c)
}

// ConfigTree converts a Config struct into a rendered tree string
func ConfigTree(cfg *Config) string {
	t := fancy.Tree()
	t.Root(fancy.RootStyle.Render("User Code Config"))

	t.Child(fmt.Sprintf("Data dir: %s", cfg.DataDir))

	logging := t.Child(fancy.BranchNode("Logging", ""))
	logging.Child(fmt.Sprintf("Format: %s", orUnset(cfg.LogFormat.String())))
	logging.Child(fmt.Sprintf("Level: %s", orUnset(cfg.LogLevel.String())))

	sandbox := fancy.BranchNode("Sandbox", "")
	sandbox.Child(fmt.Sprintf("Disabled for global scripts: %t", cfg.Sandbox.DisableGlobal))
	sandbox.Child(fmt.Sprintf("Disabled for bot scripts: %t", cfg.Sandbox.DisableBots))
	sandbox.Child(fmt.Sprintf("Action timeout: %s", cfg.ActionTimeout()))
	sandbox.Child(fmt.Sprintf("Trusted prefixes: %s", strings.Join(cfg.TrustedPrefixes(), ", ")))
	t.Child(sandbox)

	t.Child(fmt.Sprintf("Invalidation: debounce %s, watch %t", cfg.Debounce(), cfg.WatchEnabled()))

	servers := fancy.BranchNode("Action servers", fmt.Sprintf("(%d)", len(cfg.ActionServers)))
	for _, s := range cfg.ActionServers {
		servers.Child(fmt.Sprintf("%s %s", fancy.ActionText(s.ID), s.BaseURL))
	}
	t.Child(servers)

	bots := fancy.BranchNode("Bots", fmt.Sprintf("(%d)", len(cfg.Bots)))
	for _, b := range cfg.Bots {
		line := fmt.Sprintf("%s workspace=%s", fancy.BotText(b.ID), cfg.WorkspaceID(b.ID))
		if b.ActionServer != "" {
			line += " action_server=" + b.ActionServer
		}
		bots.Child(line)
	}
	t.Child(bots)

	if len(cfg.Modules) > 0 {
		modules := fancy.BranchNode("Modules", fmt.Sprintf("(%d)", len(cfg.Modules)))
		for _, m := range cfg.Modules {
			modules.Child(fmt.Sprintf("%s %s", m.Name, m.Root))
		}
		t.Child(modules)
	}

	if len(cfg.Lifecycles) > 0 {
		lifecycles := fancy.BranchNode("Lifecycle overrides", fmt.Sprintf("(%d)", len(cfg.Lifecycles)))
		opts := cfg.LifecycleOptions()
		for _, l := range cfg.Lifecycles {
			o := opts[l.Name]
			lifecycles.Child(fmt.Sprintf("%s timeout=%s throw_on_error=%t", fancy.HookText(l.Name), o.Timeout, o.ThrowOnError))
		}
		t.Child(lifecycles)
	}

	tasks := "in memory"
	if cfg.Tasks.Database != "" {
		tasks = cfg.Tasks.Database
	}
	t.Child(fmt.Sprintf("Tasks: %s", tasks))

	if cfg.Server.Listen != "" {
		t.Child(fmt.Sprintf("Action server listen: %s", cfg.Server.Listen))
	}

	return t.String()
}

func orUnset(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
