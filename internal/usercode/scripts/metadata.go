package scripts

import (
	"regexp"
	"strconv"
	"strings"
)

// Param describes one declared action argument.
type Param struct {
	Name        string
	Type        string
	Description string
	Default     string
}

// Metadata is read from the leading comment block of a script:
//
//	# @title Set a variable
//	# @category Storage
//	# @param {string} name - The variable name
//	# @privilege http
//
// Unknown or malformed tags are ignored.
type Metadata struct {
	Title       string
	Category    string
	Author      string
	Description string
	Hidden      bool
	Params      []Param
	Privileges  []string
}

var (
	tagPattern   = regexp.MustCompile(`^@([A-Za-z]+)\s*(.*)$`)
	paramPattern = regexp.MustCompile(`^\{([^}]*)\}\s+(\[?[A-Za-z_][\w.]*(?:=[^\]]*)?\]?)\s*(?:-\s*(.*))?$`)
)

// ExtractMetadata parses the metadata tags of a script without executing it.
// Both "#" (Starlark) and "//" (Risor) comment lines are understood.
func ExtractMetadata(source string) Metadata {
	var md Metadata
	var description []string

	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		var body string
		switch {
		case strings.HasPrefix(line, "#"):
			body = strings.TrimSpace(strings.TrimLeft(line, "#"))
		case strings.HasPrefix(line, "//"):
			body = strings.TrimSpace(strings.TrimLeft(line, "/"))
		default:
			// first code line ends the header block
			md.Description = joinDescription(md.Description, description)
			return md
		}

		m := tagPattern.FindStringSubmatch(body)
		if m == nil {
			if body != "" && md.Description == "" {
				description = append(description, body)
			}
			continue
		}

		value := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "title":
			md.Title = value
		case "category":
			md.Category = value
		case "author":
			md.Author = value
		case "description":
			md.Description = value
		case "hidden":
			hidden, err := strconv.ParseBool(value)
			md.Hidden = err == nil && hidden || value == ""
		case "param":
			if p, ok := parseParam(value); ok {
				md.Params = append(md.Params, p)
			}
		case "privilege", "privileges":
			for _, priv := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
				md.Privileges = append(md.Privileges, strings.ToLower(priv))
			}
		}
	}

	md.Description = joinDescription(md.Description, description)
	return md
}

func joinDescription(explicit string, lines []string) string {
	if explicit != "" {
		return explicit
	}
	return strings.Join(lines, " ")
}

func parseParam(value string) (Param, bool) {
	m := paramPattern.FindStringSubmatch(value)
	if m == nil {
		return Param{}, false
	}

	p := Param{Type: strings.TrimSpace(m[1]), Description: strings.TrimSpace(m[3])}
	name := strings.Trim(m[2], "[]")
	if k, v, found := strings.Cut(name, "="); found {
		name = k
		p.Default = v
	}
	p.Name = name
	return p, true
}

// HasPrivilege reports whether the script declared the given privilege.
func (m Metadata) HasPrivilege(name string) bool {
	name = strings.ToLower(name)
	for _, p := range m.Privileges {
		if p == name {
			return true
		}
	}
	return false
}
