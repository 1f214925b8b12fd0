package remote

import (
	"context"
	"fmt"
	"sort"

	"github.com/artpar/shellgate/core/contract"
	"github.com/artpar/shellgate/core/store"
	"github.com/artpar/shellgate/ports"
	"github.com/rs/zerolog"
)

// Manifest is the JSON document a module host serves at its resolved address.
//
//	{
//	  "tab":   {"id": "orders", "title": "Orders", "component": "OrdersTab"},
//	  "state": {"orders": {"selected": null}}
//	}
//
// Each state entry becomes a value slice whose initial value is the entry.
type Manifest struct {
	Tab   map[string]any `json:"tab"`
	State map[string]any `json:"state,omitempty"`
}

// Exports converts the manifest into what the host mounts.
func (m Manifest) Exports() ports.ModuleExports {
	out := ports.ModuleExports{
		Tab: contract.FromManifest(m.Tab),
	}
	if len(m.State) > 0 {
		out.Slices = make(map[string]store.Reducer, len(m.State))
		for key, initial := range m.State {
			out.Slices[key] = store.ValueSlice(key, initial)
		}
	}
	return out
}

// SliceKeys returns the declared state namespaces in lexical order.
func (m Manifest) SliceKeys() []string {
	keys := make([]string, 0, len(m.State))
	for k := range m.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ManifestLoader implements ports.ModuleLoader by fetching manifests over HTTP.
type ManifestLoader struct {
	client *Client
	logger zerolog.Logger
}

// NewManifestLoader creates a loader backed by client.
func NewManifestLoader(client *Client, logger zerolog.Logger) *ManifestLoader {
	return &ManifestLoader{client: client, logger: logger}
}

// Load fetches and converts the manifest at address.
func (l *ManifestLoader) Load(ctx context.Context, address string) (ports.ModuleExports, error) {
	var m Manifest
	if err := l.client.GetJSON(ctx, address, &m); err != nil {
		return ports.ModuleExports{}, fmt.Errorf("load manifest %s: %w", address, err)
	}

	l.logger.Debug().
		Str("address", address).
		Strs("slices", m.SliceKeys()).
		Msg("manifest loaded")

	return m.Exports(), nil
}

// Ensure interface compliance.
var _ ports.ModuleLoader = (*ManifestLoader)(nil)
