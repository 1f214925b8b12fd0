// Package app contains the application services that sit between the pure
// domain/core packages and the adapters.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/artpar/shellgate/domain/remote"
	"github.com/artpar/shellgate/ports"
	"github.com/rs/zerolog"
)

// Override service errors.
var (
	ErrInvalidPRNumber = errors.New("pr number must be positive")
	ErrEmptyModuleName = errors.New("module name is required")
	ErrEmptyAddress    = errors.New("override address is required")
)

// OverrideConfig configures the override service.
type OverrideConfig struct {
	Remotes        []remote.Module
	Naming         remote.Naming
	StoreKey       string
	StagingPattern string
	PreviewPattern string
}

func (c OverrideConfig) withDefaults() OverrideConfig {
	if c.Naming.QueryPrefix == "" {
		c.Naming.QueryPrefix = remote.DefaultQueryPrefix
	}
	if c.Naming.CookiePrefix == "" {
		c.Naming.CookiePrefix = remote.DefaultCookiePrefix
	}
	if c.StoreKey == "" {
		c.StoreKey = remote.DefaultStoreKey
	}
	if c.StagingPattern == "" {
		c.StagingPattern = remote.DefaultStagingPattern
	}
	if c.PreviewPattern == "" {
		c.PreviewPattern = remote.DefaultPreviewPattern
	}
	return c
}

// ResolutionRecorder receives resolver activity, typically a metrics collector.
type ResolutionRecorder interface {
	Resolved(module, source string)
	OverrideChanged(op string)
}

// OverrideService resolves remote module addresses and manages the
// persisted override blob.
type OverrideService struct {
	store    ports.KVStore
	logger   zerolog.Logger
	recorder ResolutionRecorder

	cfgMu sync.RWMutex
	cfg   OverrideConfig

	// blobMu serialises read-modify-write cycles on the blob.
	blobMu sync.Mutex
}

// NewOverrideService creates a new override service.
func NewOverrideService(store ports.KVStore, cfg OverrideConfig, logger zerolog.Logger) *OverrideService {
	return &OverrideService{
		store:  store,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// SetRecorder attaches a resolution recorder.
func (s *OverrideService) SetRecorder(r ResolutionRecorder) {
	s.recorder = r
}

// Reconfigure swaps the remote list and naming, e.g. after a config reload.
func (s *OverrideService) Reconfigure(cfg OverrideConfig) {
	cfg = cfg.withDefaults()

	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	s.logger.Info().Int("remotes", len(cfg.Remotes)).Msg("override service reconfigured")
}

func (s *OverrideService) config() OverrideConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Remotes returns the configured remote modules.
func (s *OverrideService) Remotes() []remote.Module {
	cfg := s.config()
	out := make([]remote.Module, len(cfg.Remotes))
	copy(out, cfg.Remotes)
	return out
}

// Lookup returns the configured remote with the given name.
func (s *OverrideService) Lookup(name string) (remote.Module, bool) {
	for _, m := range s.config().Remotes {
		if m.Name == name {
			return m, true
		}
	}
	return remote.Module{}, false
}

// Resolve picks the address for one module. It never fails: a broken or
// unreadable blob degrades to the cookie/query/default sources.
func (s *OverrideService) Resolve(ctx context.Context, in remote.Inputs, name, defaultAddress string) remote.Descriptor {
	cfg := s.config()
	d := remote.Resolve(name, defaultAddress, in, s.readBlob(ctx, cfg.StoreKey), cfg.Naming)
	s.record(d)
	return d
}

// ResolveAll resolves every configured remote against its default.
func (s *OverrideService) ResolveAll(ctx context.Context, in remote.Inputs) []remote.Descriptor {
	cfg := s.config()
	stored := s.readBlob(ctx, cfg.StoreKey)

	out := make([]remote.Descriptor, 0, len(cfg.Remotes))
	for _, m := range cfg.Remotes {
		d := remote.Resolve(m.Name, m.DefaultAddress, in, stored, cfg.Naming)
		s.record(d)
		out = append(out, d)
	}
	return out
}

func (s *OverrideService) record(d remote.Descriptor) {
	s.logger.Debug().
		Str("module", d.Name).
		Str("source", string(d.Source)).
		Str("address", d.ResolvedAddress).
		Msg("remote resolved")
	if s.recorder != nil {
		s.recorder.Resolved(d.Name, string(d.Source))
	}
}

// Override merge-writes one entry into the blob. Names that are not
// configured remotes are written anyway, with a warning.
func (s *OverrideService) Override(ctx context.Context, name, address string) error {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if name == "" {
		return ErrEmptyModuleName
	}
	if address == "" {
		return ErrEmptyAddress
	}

	if _, ok := s.Lookup(name); !ok {
		ev := s.logger.Warn().Str("module", name)
		if suggestion := s.Suggest(name); suggestion != "" {
			ev = ev.Str("did_you_mean", suggestion)
		}
		ev.Msg("override set for unknown remote")
	}

	err := s.mutate(ctx, func(blob map[string]string) {
		blob[name] = address
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("module", name).Str("address", address).Msg("override set")
	s.changed("set")
	return nil
}

// ClearOverride removes one entry. Clearing an absent entry is a no-op.
func (s *OverrideService) ClearOverride(ctx context.Context, name string) error {
	removed := false
	err := s.mutate(ctx, func(blob map[string]string) {
		if _, ok := blob[name]; ok {
			delete(blob, name)
			removed = true
		}
	})
	if err != nil {
		return err
	}

	if !removed {
		s.logger.Warn().Str("module", name).Msg("no override to clear")
		return nil
	}
	s.logger.Info().Str("module", name).Msg("override cleared")
	s.changed("clear")
	return nil
}

// ClearOverrides empties the blob.
func (s *OverrideService) ClearOverrides(ctx context.Context) error {
	cfg := s.config()

	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	if err := s.store.Remove(ctx, cfg.StoreKey); err != nil {
		return fmt.Errorf("clear overrides: %w", err)
	}
	s.logger.Info().Msg("all overrides cleared")
	s.changed("clear_all")
	return nil
}

// ListOverrides returns a copy of the blob contents.
func (s *OverrideService) ListOverrides(ctx context.Context) map[string]string {
	return s.readBlob(ctx, s.config().StoreKey)
}

// UseStaging points every configured remote at its staging build and
// returns the addresses written.
func (s *OverrideService) UseStaging(ctx context.Context) (map[string]string, error) {
	cfg := s.config()

	written := make(map[string]string, len(cfg.Remotes))
	for _, m := range cfg.Remotes {
		written[m.Name] = remote.StagingAddress(cfg.StagingPattern, m.Name)
	}

	err := s.mutate(ctx, func(blob map[string]string) {
		for k, v := range written {
			blob[k] = v
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("remotes", len(written)).Msg("all remotes switched to staging")
	s.changed("staging")
	return written, nil
}

// TestPR points one module at the preview build for a pull request and
// returns the address written.
func (s *OverrideService) TestPR(ctx context.Context, name string, pr int) (string, error) {
	if pr <= 0 {
		return "", ErrInvalidPRNumber
	}
	address := remote.PreviewAddress(s.config().PreviewPattern, name, pr)
	if err := s.Override(ctx, name, address); err != nil {
		return "", err
	}
	return address, nil
}

// Suggest returns the closest configured remote name, or "" when nothing is
// reasonably close.
func (s *OverrideService) Suggest(name string) string {
	best, bestDist := "", -1
	for _, m := range s.config().Remotes {
		d := levenshtein.ComputeDistance(name, m.Name)
		if bestDist < 0 || d < bestDist {
			best, bestDist = m.Name, d
		}
	}
	if bestDist < 0 || bestDist > maxSuggestDistance(name) {
		return ""
	}
	return best
}

func maxSuggestDistance(name string) int {
	if n := len(name) / 3; n > 2 {
		return n
	}
	return 2
}

func (s *OverrideService) changed(op string) {
	if s.recorder != nil {
		s.recorder.OverrideChanged(op)
	}
}

// readBlob loads the blob. Missing, unreadable and corrupt blobs all come
// back as an empty map.
func (s *OverrideService) readBlob(ctx context.Context, key string) map[string]string {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read override blob, ignoring")
		}
		return map[string]string{}
	}

	blob, err := decodeBlob(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("corrupt override blob, ignoring")
		return map[string]string{}
	}
	return blob
}

func (s *OverrideService) mutate(ctx context.Context, fn func(blob map[string]string)) error {
	key := s.config().StoreKey

	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	blob := s.readBlob(ctx, key)
	fn(blob)

	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	if err := s.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("write overrides: %w", err)
	}
	return nil
}

// decodeBlob parses the blob, dropping entries whose values are not strings.
func decodeBlob(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, err
	}
	if generic == nil {
		return nil, errors.New("override blob is not an object")
	}

	out := make(map[string]string, len(generic))
	for k, v := range generic {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out, nil
}

// SortedOverrideNames returns the blob keys in lexical order.
func SortedOverrideNames(blob map[string]string) []string {
	names := make([]string, 0, len(blob))
	for k := range blob {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
