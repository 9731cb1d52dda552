package scripts

import (
	"path"
	"strings"
)

// DisabledMarker prefixes the base name of a script file that must not be discovered.
const DisabledMarker = "."

const (
	extStarlark = ".star"
	extHTTP     = ".http.star"
	extRisor    = ".risor"
)

// IsDisabled reports whether the base name of file carries the disabled marker.
func IsDisabled(file string) bool {
	return strings.HasPrefix(path.Base(file), DisabledMarker)
}

// FilterEnabled drops disabled files, preserving order.
func FilterEnabled(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !IsDisabled(f) {
			out = append(out, f)
		}
	}
	return out
}

// DisabledName returns file with the disabled marker added to its base name.
func DisabledName(file string) string {
	if IsDisabled(file) {
		return file
	}
	dir, base := path.Split(file)
	return dir + DisabledMarker + base
}

// EnabledName returns file with the disabled marker removed from its base name.
func EnabledName(file string) string {
	dir, base := path.Split(file)
	return dir + strings.TrimPrefix(base, DisabledMarker)
}

// ParseActionFile derives the action name, variant and language from a file
// path relative to the actions directory. ok is false for files that are not
// scripts.
func ParseActionFile(file string) (name string, variant Variant, lang Language, ok bool) {
	file = path.Clean(strings.ReplaceAll(file, "\\", "/"))
	switch {
	case strings.HasSuffix(file, extHTTP):
		return strings.TrimSuffix(file, extHTTP), VariantHTTP, LanguageStarlark, true
	case strings.HasSuffix(file, extStarlark):
		return strings.TrimSuffix(file, extStarlark), VariantLegacy, LanguageStarlark, true
	case strings.HasSuffix(file, extRisor):
		return strings.TrimSuffix(file, extRisor), VariantLegacy, LanguageRisor, true
	default:
		return "", VariantLegacy, LanguageStarlark, false
	}
}

// ActionFile is the inverse of ParseActionFile.
func ActionFile(name string, variant Variant, lang Language) string {
	if lang == LanguageRisor {
		return name + extRisor
	}
	if variant == VariantHTTP {
		return name + extHTTP
	}
	return name + extStarlark
}

// HookName returns the hook name for a hook file: its base name without extension.
func HookName(file string) string {
	return strings.TrimSuffix(path.Base(file), extStarlark)
}

// HookFile returns the file name of a hook, optionally inside a module folder.
func HookFile(name, module string) string {
	if module == "" {
		return name + extStarlark
	}
	return module + "/" + name + extStarlark
}

// ScriptPattern is the listing pattern for Starlark and Risor scripts at any depth.
const ScriptPattern = "**.{star,risor}"

// HookPattern is the listing pattern for hook scripts at any depth.
const HookPattern = "**.star"

// DefaultExcludes are never listed.
var DefaultExcludes = []string{"**node_modules/**", "**node_production_modules/**"}
