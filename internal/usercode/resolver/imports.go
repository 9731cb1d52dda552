package resolver

import (
	"fmt"
	"strconv"

	"go.starlark.net/syntax"
)

// RequireBuiltin is the name of the import function injected into scripts
// alongside the load statement.
const RequireBuiltin = "require"

// FileOptions are the dialect options every Starlark script is parsed and
// executed with.
var FileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Import is one import expression found in a script.
type Import struct {
	Name string
	Pos  syntax.Position
}

// ScanImports parses source and returns the module names it imports through
// load statements or require calls with a literal argument, in source order.
// Comments and strings that only look like imports are ignored.
func ScanImports(filename, source string) ([]Import, error) {
	f, err := FileOptions.Parse(filename, source, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	var imports []Import
	syntax.Walk(f, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.LoadStmt:
			imports = append(imports, Import{Name: n.ModuleName(), Pos: n.Load})
		case *syntax.CallExpr:
			if name, ok := requireArg(n); ok {
				imports = append(imports, Import{Name: name, Pos: n.Lparen})
			}
		}
		return true
	})
	return imports, nil
}

func requireArg(call *syntax.CallExpr) (string, bool) {
	fn, ok := call.Fn.(*syntax.Ident)
	if !ok || fn.Name != RequireBuiltin || len(call.Args) != 1 {
		return "", false
	}
	lit, ok := call.Args[0].(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return "", false
	}
	if s, ok := lit.Value.(string); ok {
		return s, true
	}
	// raw literal text as a fallback
	s, err := strconv.Unquote(lit.Raw)
	return s, err == nil
}
