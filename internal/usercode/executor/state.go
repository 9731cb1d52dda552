package executor

import (
	"fmt"

	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"go.starlark.net/starlark"
)

// partitionBindings links the state partitions of a run. When the caller
// binds an event, its state dicts and the temp, user and session globals are
// the same objects, so mutations through either name are observed.
func partitionBindings(globals starlark.StringDict) map[string]*starlark.Dict {
	var state *starlark.Dict
	if ev, ok := globals[BindingEvent].(*starlark.Dict); ok {
		if v, found, _ := ev.Get(starlark.String("state")); found {
			state, _ = v.(*starlark.Dict)
		}
	}

	out := make(map[string]*starlark.Dict, len(event.Partitions))
	for _, p := range event.Partitions {
		key := starlark.String(p)
		if d, ok := globals[p].(*starlark.Dict); ok {
			out[p] = d
			if state != nil {
				_ = state.SetKey(key, d)
			}
			continue
		}
		if state == nil {
			continue
		}
		if v, found, _ := state.Get(key); found {
			if d, ok := v.(*starlark.Dict); ok {
				globals[p] = d
				out[p] = d
			}
		}
	}
	return out
}

// extractState converts the final partitions back to Go. A partition global
// the script reassigned wins over one reassigned inside event.state, which
// wins over the in-place mutated binding.
func extractState(
	bound map[string]*starlark.Dict,
	predeclared starlark.StringDict,
	module starlark.StringDict,
) (event.StateDelta, error) {
	var state *starlark.Dict
	if ev, ok := predeclared[BindingEvent].(*starlark.Dict); ok {
		if v, found, _ := ev.Get(starlark.String("state")); found {
			state, _ = v.(*starlark.Dict)
		}
	}

	delta := make(event.StateDelta, len(bound))
	for _, p := range event.Partitions {
		d, ok := bound[p]
		if !ok {
			continue
		}
		if state != nil {
			if v, found, _ := state.Get(starlark.String(p)); found {
				if sd, isDict := v.(*starlark.Dict); isDict {
					d = sd
				}
			}
		}
		if g, ok := module[p].(*starlark.Dict); ok {
			d = g
		}

		m, err := dictToMap(d)
		if err != nil {
			return nil, fmt.Errorf("state partition %q: %w", p, err)
		}
		delta[p] = m
	}
	return delta, nil
}
