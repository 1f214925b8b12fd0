package store

// Typed adapts a typed reducer to a Reducer. A nil or mistyped incoming state
// is replaced by initial before fn runs.
func Typed[S any](initial S, fn func(state S, action Action) S) Reducer {
	return func(state any, action Action) any {
		typed, ok := state.(S)
		if !ok {
			typed = initial
		}
		if action.Type == InitAction {
			return typed
		}
		return fn(typed, action)
	}
}

// Select reads a namespace as S.
func Select[S any](s *Store, key string) (S, bool) {
	var zero S
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(S)
	if !ok {
		return zero, false
	}
	return typed, true
}

// SetActionType returns the action type ValueSlice responds to for key.
func SetActionType(key string) string {
	return key + "/set"
}

// ValueSlice returns a reducer holding an arbitrary value that starts at
// initial and is replaced wholesale by "<key>/set" actions.
// It backs slices declared by remote manifests, which cannot ship reducer code.
// Maps and slices in initial are copied, so each initialisation starts from an
// untouched default.
func ValueSlice(key string, initial any) Reducer {
	setType := SetActionType(key)
	initial = cloneValue(initial)
	return func(state any, action Action) any {
		switch {
		case action.Type == setType:
			return action.Payload
		case action.Type == InitAction, state == nil:
			return cloneValue(initial)
		default:
			return state
		}
	}
}

// cloneValue deep-copies the container shapes JSON and YAML decoding produce.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
