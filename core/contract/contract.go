// Package contract validates that a pluggable tab module's exported shape
// satisfies the platform contract before the module is trusted.
//
// All functions are pure: no side effects, no panics. Failures are reported in
// a Result grouped by category.
package contract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Contract field names.
const (
	FieldID        = "id"
	FieldTitle     = "title"
	FieldComponent = "component"
	FieldIcon      = "icon"
)

// IDPattern is the required shape of a module id.
const IDPattern = `^[a-z][a-z0-9-]*$`

var idRegexp = regexp.MustCompile(IDPattern)

var (
	requiredFields = []string{FieldID, FieldTitle, FieldComponent}
	allowedFields  = map[string]bool{
		FieldID:        true,
		FieldTitle:     true,
		FieldComponent: true,
		FieldIcon:      true,
	}
)

// Category groups validation messages.
type Category string

const (
	CategoryStructure Category = "structure"
	CategoryID        Category = "id"
	CategoryComponent Category = "component"
	CategoryIcon      Category = "icon"
)

// categoryOrder fixes the order FormatErrors renders groups in.
var categoryOrder = []Category{CategoryStructure, CategoryID, CategoryComponent, CategoryIcon}

// Candidate is a module's exported shape as seen across the module boundary.
type Candidate map[string]any

// Renderable is the UI factory capability a module's component or icon exposes.
type Renderable interface {
	Render(ctx context.Context, props map[string]any) (any, error)
}

// RenderFunc adapts a function to Renderable.
type RenderFunc func(ctx context.Context, props map[string]any) (any, error)

// Render calls f.
func (f RenderFunc) Render(ctx context.Context, props map[string]any) (any, error) {
	return f(ctx, props)
}

// ExportRef names a renderable export of a remote module. Manifests fetched
// over the network carry references rather than code.
type ExportRef struct {
	Export string `json:"export" yaml:"export"`
}

// Result is the outcome of a validation.
type Result struct {
	Valid  bool                  `json:"valid"`
	Errors map[Category][]string `json:"errors,omitempty"`
}

// AddError records a message under a category and marks the result invalid.
func (r *Result) AddError(c Category, format string, args ...any) {
	if r.Errors == nil {
		r.Errors = make(map[Category][]string)
	}
	r.Valid = false
	r.Errors[c] = append(r.Errors[c], fmt.Sprintf(format, args...))
}

// Merge appends other's errors into r.
func (r *Result) Merge(other Result) {
	for _, c := range sortedCategories(other.Errors) {
		for _, msg := range other.Errors[c] {
			r.AddError(c, "%s", msg)
		}
	}
}

// Error returns a combined error message.
func (r Result) Error() string {
	if r.Valid {
		return ""
	}
	return FormatErrors(r.Errors)
}

func valid() Result {
	return Result{Valid: true}
}

// ValidateStructure checks required fields, field types, the id pattern and
// rejects fields outside the contract. Pattern mismatches are reported under
// CategoryID, everything else under CategoryStructure.
func ValidateStructure(c Candidate) Result {
	result := valid()

	if c == nil {
		result.AddError(CategoryStructure, "module exports are missing")
		return result
	}

	for _, f := range requiredFields {
		v, ok := c[f]
		if !ok || v == nil {
			result.AddError(CategoryStructure, "missing required field '%s'", f)
		}
	}

	var unknown []string
	for f := range c {
		if !allowedFields[f] {
			unknown = append(unknown, f)
		}
	}
	sort.Strings(unknown)
	for _, f := range unknown {
		result.AddError(CategoryStructure, "unknown field '%s' - not part of the contract", f)
	}

	if v, ok := c[FieldTitle]; ok && v != nil {
		title, isString := v.(string)
		if !isString {
			result.AddError(CategoryStructure, "field 'title' must be a string, got %T", v)
		} else if strings.TrimSpace(title) == "" {
			result.AddError(CategoryStructure, "field 'title' must not be empty")
		}
	}

	if v, ok := c[FieldID]; ok && v != nil {
		if _, isString := v.(string); !isString {
			result.AddError(CategoryStructure, "field 'id' must be a string, got %T", v)
		} else {
			result.Merge(ValidateID(c))
		}
	}

	return result
}

// ValidateComponent checks that component is a renderable reference.
func ValidateComponent(c Candidate) Result {
	result := valid()
	v, ok := c[FieldComponent]
	if !ok || v == nil {
		result.AddError(CategoryComponent, "component is required")
		return result
	}
	if msg := renderableProblem(v); msg != "" {
		result.AddError(CategoryComponent, "component %s", msg)
	}
	return result
}

// ValidateIcon checks that icon, when present, is a renderable reference.
func ValidateIcon(c Candidate) Result {
	result := valid()
	v, ok := c[FieldIcon]
	if !ok || v == nil {
		return result
	}
	if msg := renderableProblem(v); msg != "" {
		result.AddError(CategoryIcon, "icon %s", msg)
	}
	return result
}

// ValidateID checks that id matches IDPattern.
func ValidateID(c Candidate) Result {
	result := valid()
	v, ok := c[FieldID]
	if !ok || v == nil {
		result.AddError(CategoryID, "id is required")
		return result
	}
	id, isString := v.(string)
	if !isString {
		result.AddError(CategoryID, "id must be a string, got %T", v)
		return result
	}
	if !idRegexp.MatchString(id) {
		result.AddError(CategoryID, "id %q must match pattern %s (lowercase letters, digits and hyphens, starting with a letter)", id, IDPattern)
	}
	return result
}

// ValidateContract runs the structural check first; a malformed shape
// short-circuits and only structure errors are returned. Otherwise component,
// icon and id checks run and their errors are aggregated by category.
func ValidateContract(c Candidate) Result {
	structure := ValidateStructure(c)
	if !structure.Valid {
		return structure
	}

	result := valid()
	result.Merge(ValidateComponent(c))
	result.Merge(ValidateIcon(c))
	result.Merge(ValidateID(c))
	return result
}

// ValidateTabModuleContract validates a tab module candidate.
func ValidateTabModuleContract(c Candidate) Result {
	return ValidateContract(c)
}

// FormatValidationErrors renders a result's errors for humans.
func FormatValidationErrors(r Result) string {
	return FormatErrors(r.Errors)
}

// FormatErrors renders the category -> messages map as grouped text.
func FormatErrors(errors map[Category][]string) string {
	if len(errors) == 0 {
		return ""
	}

	var b strings.Builder
	for i, c := range sortedCategories(errors) {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:\n", c)
		for _, msg := range errors[c] {
			fmt.Fprintf(&b, "  - %s\n", msg)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// sortedCategories returns known categories in fixed order, then any others by name.
func sortedCategories(errors map[Category][]string) []Category {
	out := make([]Category, 0, len(errors))
	seen := make(map[Category]bool, len(categoryOrder))
	for _, c := range categoryOrder {
		seen[c] = true
		if len(errors[c]) > 0 {
			out = append(out, c)
		}
	}
	var rest []Category
	for c, msgs := range errors {
		if !seen[c] && len(msgs) > 0 {
			rest = append(rest, c)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}
