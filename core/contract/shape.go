package contract

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// renderableProblem describes why v is not renderable, or returns "".
// No compile-time guarantee crosses the module boundary, so the check is by
// runtime shape.
func renderableProblem(v any) string {
	switch r := v.(type) {
	case Renderable:
		if isNilPointer(r) {
			return "is a nil renderable"
		}
		return ""
	case func(context.Context, map[string]any) (any, error):
		if r == nil {
			return "is a nil render func"
		}
		return ""
	case ExportRef:
		return exportRefProblem(r)
	case *ExportRef:
		if r == nil {
			return "is a nil export reference"
		}
		return exportRefProblem(*r)
	}

	if reflect.TypeOf(v).Kind() == reflect.Func {
		if isNilPointer(v) {
			return fmt.Sprintf("is a nil %T", v)
		}
		return fmt.Sprintf("must have signature func(context.Context, map[string]any) (any, error), got %T", v)
	}
	return fmt.Sprintf("must be a renderable reference, got %T", v)
}

func exportRefProblem(r ExportRef) string {
	if strings.TrimSpace(r.Export) == "" {
		return "export reference has an empty export name"
	}
	return ""
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// FromManifest converts a decoded YAML/JSON manifest into a Candidate.
// String component/icon values and {"export": name} objects become ExportRefs;
// every other field is copied as-is so structural checks still see it.
func FromManifest(m map[string]any) Candidate {
	if m == nil {
		return nil
	}
	c := make(Candidate, len(m))
	for k, v := range m {
		if k == FieldComponent || k == FieldIcon {
			c[k] = toExportRef(v)
			continue
		}
		c[k] = v
	}
	return c
}

func toExportRef(v any) any {
	switch t := v.(type) {
	case string:
		return ExportRef{Export: t}
	case map[string]any:
		if name, ok := t["export"].(string); ok && len(t) == 1 {
			return ExportRef{Export: name}
		}
	}
	return v
}
