package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// stdlib holds the builtin modules addressable with resolver.BuiltinPrefix.
var stdlib = map[string]starlark.StringDict{
	resolver.BuiltinPrefix + "json": {"json": starjson.Module},
	resolver.BuiltinPrefix + "math": {"math": starmath.Module},
	resolver.BuiltinPrefix + "time": {"time": startime.Module},
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
	loading bool
}

// moduleLoader serves load statements and require calls of one run. Every
// module file is executed at most once per run, on its own thread, and all
// threads are cancelled together.
type moduleLoader struct {
	ctx      context.Context
	resolver *resolver.Resolver
	files    store.PathReader
	target   resolver.Target
	maxSteps uint64
	printFn  func(msg string)

	// predeclared globals of library modules
	predeclared starlark.StringDict

	mu        sync.Mutex
	cache     map[string]*loadEntry
	threads   []*starlark.Thread
	cancelled string
}

func newModuleLoader(
	ctx context.Context,
	res *resolver.Resolver,
	files store.PathReader,
	target resolver.Target,
	maxSteps uint64,
	printFn func(string),
) *moduleLoader {
	l := &moduleLoader{
		ctx:      ctx,
		resolver: res,
		files:    files,
		target:   target,
		maxSteps: maxSteps,
		printFn:  printFn,
		cache:    make(map[string]*loadEntry),
	}
	l.predeclared = starlark.StringDict{
		resolver.RequireBuiltin: l.requireBuiltin(),
	}
	return l
}

// newThread returns a thread wired to the loader. Threads created after
// cancellation start cancelled.
func (l *moduleLoader) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Load: l.load,
		Print: func(_ *starlark.Thread, msg string) {
			if l.printFn != nil {
				l.printFn(msg)
			}
		},
	}
	if l.maxSteps > 0 {
		thread.SetMaxExecutionSteps(l.maxSteps)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.threads = append(l.threads, thread)
	if l.cancelled != "" {
		thread.Cancel(l.cancelled)
	}
	return thread
}

// cancel stops every thread of the run.
func (l *moduleLoader) cancel(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled != "" {
		return
	}
	l.cancelled = reason
	for _, t := range l.threads {
		t.Cancel(reason)
	}
}

func (l *moduleLoader) wasCancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled != ""
}

// load implements starlark.Thread.Load. The requesting file is the file of
// the innermost frame.
func (l *moduleLoader) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	return l.loadFrom(thread.CallFrame(0).Pos.Filename(), module)
}

func (l *moduleLoader) loadFrom(from, module string) (starlark.StringDict, error) {
	if globals, ok := stdlib[module]; ok {
		return globals, nil
	}

	target := l.target
	target.Path = from
	res, err := l.resolver.Resolve(l.resolver.Lookup(target), module)
	if err != nil {
		return nil, err
	}
	if res.Builtin {
		return nil, fmt.Errorf("%w: builtin %s has no implementation", resolver.ErrModuleNotFound, module)
	}

	l.mu.Lock()
	entry, ok := l.cache[res.Path]
	if ok {
		l.mu.Unlock()
		if entry.loading {
			return nil, fmt.Errorf("%w: %s", resolver.ErrImportCycle, res.Path)
		}
		return entry.globals, entry.err
	}
	entry = &loadEntry{loading: true}
	l.cache[res.Path] = entry
	l.mu.Unlock()

	src, err := l.files.ReadPath(l.ctx, res.Path)
	if err == nil {
		entry.globals, err = starlark.ExecFileOptions(
			resolver.FileOptions,
			l.newThread(res.Path),
			res.Path,
			src,
			l.predeclared,
		)
	}

	l.mu.Lock()
	entry.err = err
	entry.loading = false
	l.mu.Unlock()
	return entry.globals, err
}

// requireBuiltin returns the require function. It yields the builtin module
// itself for stdlib modules and a struct of the exported globals otherwise.
func (l *moduleLoader) requireBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin(resolver.RequireBuiltin, func(
		thread *starlark.Thread,
		b *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		// frame 0 is require itself
		globals, err := l.loadFrom(thread.CallFrame(1).Pos.Filename(), name)
		if err != nil {
			return nil, err
		}
		if _, ok := stdlib[name]; ok && len(globals) == 1 {
			for _, v := range globals {
				return v, nil
			}
		}
		return starlarkstruct.FromStringDict(starlark.String(name), exported(globals)), nil
	})
}

// exported drops private names, those starting with an underscore.
func exported(globals starlark.StringDict) starlark.StringDict {
	out := make(starlark.StringDict, len(globals))
	for k, v := range globals {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}
