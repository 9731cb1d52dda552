package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/atlanticdynamic/usercode/internal/config/errz"
	"github.com/atlanticdynamic/usercode/internal/usercode/hooks"
)

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.Logging().validate()...)

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%w: data_dir", errz.ErrMissingRequiredField))
	}

	for name, d := range map[string]Duration{
		"sandbox.action_timeout":     c.Sandbox.ActionTimeout,
		"invalidation.debounce":      c.Invalidation.Debounce,
		"delegation.request_timeout": c.Delegation.RequestTimeout,
		"delegation.token_ttl":       c.Delegation.TokenTTL,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s is negative", errz.ErrInvalidValue, name))
		}
	}

	serverIDs := make(map[string]bool, len(c.ActionServers))
	for i, s := range c.ActionServers {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("%w: action_servers[%d]", errz.ErrEmptyID, i))
			continue
		}
		if serverIDs[s.ID] {
			errs = append(errs, fmt.Errorf("%w: action server %q", errz.ErrDuplicateID, s.ID))
		}
		serverIDs[s.ID] = true

		u, err := url.Parse(s.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%w: action server %q base_url %q", errz.ErrInvalidValue, s.ID, s.BaseURL))
		}
	}

	botIDs := make(map[string]bool, len(c.Bots))
	for i, b := range c.Bots {
		if b.ID == "" {
			errs = append(errs, fmt.Errorf("%w: bots[%d]", errz.ErrEmptyID, i))
			continue
		}
		if botIDs[b.ID] {
			errs = append(errs, fmt.Errorf("%w: bot %q", errz.ErrDuplicateID, b.ID))
		}
		botIDs[b.ID] = true

		if b.ActionServer != "" && !serverIDs[b.ActionServer] {
			errs = append(errs, fmt.Errorf(
				"%w: bot %q references %q", errz.ErrActionServerNotFound, b.ID, b.ActionServer))
		}
	}
	if len(serverIDs) > 0 && c.AppSecret == "" {
		errs = append(errs, fmt.Errorf("%w: app_secret is required by action servers", errz.ErrMissingRequiredField))
	}

	moduleNames := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("%w: modules[%d]", errz.ErrEmptyID, i))
			continue
		}
		if moduleNames[m.Name] {
			errs = append(errs, fmt.Errorf("%w: module %q", errz.ErrDuplicateID, m.Name))
		}
		moduleNames[m.Name] = true
		if m.Root == "" {
			errs = append(errs, fmt.Errorf("%w: module %q root", errz.ErrMissingRequiredField, m.Name))
		}
	}

	known := hooks.DefaultLifecycles()
	seen := make(map[string]bool, len(c.Lifecycles))
	for i, l := range c.Lifecycles {
		switch {
		case l.Name == "":
			errs = append(errs, fmt.Errorf("%w: lifecycles[%d]", errz.ErrEmptyID, i))
			continue
		case seen[l.Name]:
			errs = append(errs, fmt.Errorf("%w: lifecycle %q", errz.ErrDuplicateID, l.Name))
		}
		seen[l.Name] = true
		if _, ok := known[l.Name]; !ok {
			errs = append(errs, fmt.Errorf("%w: %q", errz.ErrUnknownLifecycle, l.Name))
		}
		if l.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%w: lifecycle %q timeout is negative", errz.ErrInvalidValue, l.Name))
		}
	}

	if c.Server.Listen != "" && c.AppSecret == "" {
		errs = append(errs, fmt.Errorf("%w: app_secret is required by server.listen", errz.ErrMissingRequiredField))
	}

	return errors.Join(errs...)
}
