// Package scripts defines the identity of user scripts: where they live (scope),
// how much they are trusted, which entry-point variant and language they use,
// and the filename conventions used to discover and disable them.
package scripts

import (
	"fmt"
	"strings"
)

// Category is a well-known top-level directory of user code.
type Category string

const (
	CategoryActions    Category = "actions"
	CategoryHooks      Category = "hooks"
	CategorySharedLibs Category = "shared_libs"
	CategoryLibraries  Category = "libraries"
)

// Scope is either the global scope or the scope of a single bot. The zero value
// is the global scope. Scopes are immutable.
type Scope struct {
	botID string
}

// Global returns the global scope.
func Global() Scope {
	return Scope{}
}

// Bot returns the scope of the given bot.
func Bot(botID string) Scope {
	return Scope{botID: botID}
}

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool {
	return s.botID == ""
}

// BotID returns the bot id of a bot scope, or an empty string for the global scope.
func (s Scope) BotID() string {
	return s.botID
}

// String returns the storage folder of the scope: "global" or "bots/<id>".
func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "bots/" + s.botID
}

// TrustTier decides whether a script may run without isolation.
type TrustTier int

const (
	TierSandboxed TrustTier = iota
	TierTrusted
)

func (t TrustTier) String() string {
	switch t {
	case TierSandboxed:
		return "sandboxed"
	case TierTrusted:
		return "trusted"
	default:
		return fmt.Sprintf("TrustTier(%d)", int(t))
	}
}

// Variant distinguishes the legacy entry point from the HTTP-style one.
type Variant int

const (
	VariantLegacy Variant = iota
	VariantHTTP
)

func (v Variant) String() string {
	switch v {
	case VariantLegacy:
		return "legacy"
	case VariantHTTP:
		return "http"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Language is the script language, derived from the file extension.
type Language int

const (
	LanguageStarlark Language = iota
	LanguageRisor
)

func (l Language) String() string {
	switch l {
	case LanguageStarlark:
		return "starlark"
	case LanguageRisor:
		return "risor"
	default:
		return fmt.Sprintf("Language(%d)", int(l))
	}
}

// Descriptor identifies a discovered script. Descriptors are replaced wholesale
// when the registry cache is invalidated, never patched.
type Descriptor struct {
	Name     string
	Scope    Scope
	Tier     TrustTier
	Variant  Variant
	Language Language
	// File is the path of the script relative to its category directory.
	File     string
	Metadata Metadata
}

// CacheKey returns the key used by the source cache. It includes the file so
// that two languages of the same action name never share an entry.
func (d Descriptor) CacheKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", d.Scope, d.Name, d.Variant, d.File)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s (%s, %s)", d.Scope, d.Name, d.Tier, d.Variant)
}

// ClassifyTrust returns TierTrusted when the script name starts with one of the
// trusted prefixes.
func ClassifyTrust(name string, trustedPrefixes []string) TrustTier {
	for _, prefix := range trustedPrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return TierTrusted
		}
	}
	return TierSandboxed
}
