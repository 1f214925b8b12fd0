// Package remote provides value types and pure functions for resolving
// which build of a remote UI module a request should load.
package remote

import (
	"net/url"
	"strconv"
	"strings"
)

// Source identifies which input won a resolution.
type Source string

const (
	SourceURLParam    Source = "url_param"
	SourceCookie      Source = "cookie"
	SourceClientStore Source = "client_store"
	SourceEnvDefault  Source = "env_default"
)

// Default naming for the override inputs.
const (
	DefaultQueryPrefix  = "remote_"
	DefaultCookiePrefix = "mf_"
	DefaultStoreKey     = "mf_overrides"
)

// Descriptor is the outcome of resolving one remote module (immutable value type).
// It is created per resolution and never persisted.
type Descriptor struct {
	Name            string `json:"name"`
	DefaultAddress  string `json:"default_address"`
	ResolvedAddress string `json:"resolved_address"`
	Source          Source `json:"source"`
}

// Overridden reports whether anything other than the default won.
func (d Descriptor) Overridden() bool {
	return d.Source != SourceEnvDefault
}

// Module is a remote module known to the host, with its environment default.
type Module struct {
	Name           string `json:"name" yaml:"name"`
	DefaultAddress string `json:"default_address" yaml:"default_address"`
}

// CookieFunc looks up a per-request cookie value.
type CookieFunc func(name string) (string, bool)

// Inputs are the read-only per-request inputs to resolution.
type Inputs struct {
	Query  url.Values
	Cookie CookieFunc
}

// Naming controls the parameter and cookie names consulted for a module.
type Naming struct {
	QueryPrefix  string
	CookiePrefix string
}

// DefaultNaming returns the remote_<name> / mf_<name> convention.
func DefaultNaming() Naming {
	return Naming{QueryPrefix: DefaultQueryPrefix, CookiePrefix: DefaultCookiePrefix}
}

// QueryParam returns the query parameter name for a module.
func (n Naming) QueryParam(module string) string {
	return n.QueryPrefix + module
}

// CookieName returns the cookie name for a module.
func (n Naming) CookieName(module string) string {
	return n.CookiePrefix + module
}

// Resolve walks the priority chain and returns on the first hit:
// query parameter, cookie, stored override, then the default.
// Empty values count as absent. Resolution never fails.
func Resolve(module, defaultAddress string, in Inputs, stored map[string]string, n Naming) Descriptor {
	d := Descriptor{
		Name:           module,
		DefaultAddress: defaultAddress,
	}

	if in.Query != nil {
		if v := strings.TrimSpace(in.Query.Get(n.QueryParam(module))); v != "" {
			d.ResolvedAddress = v
			d.Source = SourceURLParam
			return d
		}
	}

	if in.Cookie != nil {
		if v, ok := in.Cookie(n.CookieName(module)); ok && strings.TrimSpace(v) != "" {
			d.ResolvedAddress = strings.TrimSpace(v)
			d.Source = SourceCookie
			return d
		}
	}

	if v := strings.TrimSpace(stored[module]); v != "" {
		d.ResolvedAddress = v
		d.Source = SourceClientStore
		return d
	}

	d.ResolvedAddress = defaultAddress
	d.Source = SourceEnvDefault
	return d
}

// Address patterns for the staging and preview conveniences.
const (
	PlaceholderModule = "{module}"
	PlaceholderPR     = "{pr}"

	DefaultStagingPattern = "https://staging.example.com/{module}/remoteEntry.js"
	DefaultPreviewPattern = "https://pr-{pr}.preview.example.com/{module}/remoteEntry.js"
)

// StagingAddress expands a staging pattern for a module.
func StagingAddress(pattern, module string) string {
	return strings.ReplaceAll(pattern, PlaceholderModule, module)
}

// PreviewAddress expands an ephemeral preview pattern for a module and PR number.
func PreviewAddress(pattern, module string, pr int) string {
	addr := strings.ReplaceAll(pattern, PlaceholderModule, module)
	return strings.ReplaceAll(addr, PlaceholderPR, strconv.Itoa(pr))
}
