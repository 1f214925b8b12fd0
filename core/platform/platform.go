// Package platform is the host runtime facade. It wires the override
// resolver, module loader, contract validator, state container and event bus
// into the mount/unmount lifecycle of pluggable tab modules.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artpar/shellgate/core/contract"
	"github.com/artpar/shellgate/core/events"
	"github.com/artpar/shellgate/core/store"
	"github.com/artpar/shellgate/domain/remote"
	"github.com/artpar/shellgate/ports"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownRemote is returned when a module name is not a configured remote.
	ErrUnknownRemote = errors.New("unknown remote module")

	// ErrNotMounted is returned when deactivating a module that is not mounted.
	ErrNotMounted = errors.New("module not mounted")
)

// Activation results reported to the Recorder.
const (
	ResultOK              = "ok"
	ResultUnknown         = "unknown_remote"
	ResultLoadFailed      = "load_failed"
	ResultInvalidContract = "invalid_contract"
	ResultInjectFailed    = "inject_failed"
)

// ContractError is returned by Activate when a loaded module fails validation.
type ContractError struct {
	Module string
	Result contract.Result
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("module %s failed contract validation:\n%s", e.Module, contract.FormatValidationErrors(e.Result))
}

// Resolver picks the address a module is loaded from.
type Resolver interface {
	Lookup(name string) (remote.Module, bool)
	Resolve(ctx context.Context, in remote.Inputs, name, defaultAddress string) remote.Descriptor
}

// Recorder receives lifecycle outcomes, typically a metrics collector.
type Recorder interface {
	ContractValidated(valid bool)
	ModuleActivated(result string, mounted int)
	ModulesChanged(mounted int)
}

// Mount describes one mounted module.
type Mount struct {
	Name       string            `json:"name"`
	InstanceID string            `json:"instance_id"`
	TabID      string            `json:"tab_id"`
	Title      string            `json:"title"`
	Remote     remote.Descriptor `json:"remote"`
	Slices     []string          `json:"slices"`
	MountedAt  time.Time         `json:"mounted_at"`
}

// Config holds the runtime collaborators.
type Config struct {
	Resolver Resolver
	Loader   ports.ModuleLoader
	Store    *store.Store
	Bus      *events.Bus
	IDs      ports.IDGenerator
	Clock    ports.Clock
	Recorder Recorder
	Logger   zerolog.Logger
}

// Runtime mounts and unmounts pluggable modules.
type Runtime struct {
	resolver Resolver
	loader   ports.ModuleLoader
	store    *store.Store
	bus      *events.Bus
	ids      ports.IDGenerator
	clock    ports.Clock
	recorder Recorder
	logger   zerolog.Logger

	// lifecycle serialises Activate/Deactivate so slice ownership stays
	// consistent with the mounted set.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	mounted map[string]Mount
	owners  map[string]string // slice key -> owning module
	active  string
}

// New creates a runtime.
func New(cfg Config) *Runtime {
	return &Runtime{
		resolver: cfg.Resolver,
		loader:   cfg.Loader,
		store:    cfg.Store,
		bus:      cfg.Bus,
		ids:      cfg.IDs,
		clock:    cfg.Clock,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		mounted:  make(map[string]Mount),
		owners:   make(map[string]string),
	}
}

// Store returns the state container modules inject into.
func (r *Runtime) Store() *store.Store {
	return r.store
}

// Bus returns the event bus modules communicate over.
func (r *Runtime) Bus() *events.Bus {
	return r.bus
}

// Activate resolves, loads, validates and mounts the named module, then
// announces it with a tab:activated event. Activating a mounted module
// remounts it from a fresh resolution.
//
// Resolution here ignores URL parameters and cookies: those pick an address
// for the browser, and the host only fetches from the persisted overrides or
// the configured default.
func (r *Runtime) Activate(ctx context.Context, name string) (Mount, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	mod, ok := r.resolver.Lookup(name)
	if !ok {
		r.activated(ResultUnknown)
		return Mount{}, fmt.Errorf("%w: %s", ErrUnknownRemote, name)
	}

	desc := r.resolver.Resolve(ctx, remote.Inputs{}, mod.Name, mod.DefaultAddress)

	exports, err := r.loader.Load(ctx, desc.ResolvedAddress)
	if err != nil {
		r.activated(ResultLoadFailed)
		return Mount{}, fmt.Errorf("activate %s: %w", name, err)
	}

	result := contract.ValidateTabModuleContract(exports.Tab)
	if r.recorder != nil {
		r.recorder.ContractValidated(result.Valid)
	}
	if !result.Valid {
		r.logger.Warn().
			Str("module", name).
			Str("address", desc.ResolvedAddress).
			Str("errors", contract.FormatValidationErrors(result)).
			Msg("module rejected by contract validation")
		r.activated(ResultInvalidContract)
		return Mount{}, &ContractError{Module: name, Result: result}
	}

	if prev, ok := r.get(name); ok {
		r.removeSlices(name, prev.Slices)
	}

	keys, err := r.injectSlices(name, exports.Slices)
	if err != nil {
		r.forget(name)
		r.activated(ResultInjectFailed)
		return Mount{}, fmt.Errorf("activate %s: %w", name, err)
	}

	m := Mount{
		Name:       name,
		InstanceID: r.ids.New(),
		TabID:      stringField(exports.Tab, contract.FieldID),
		Title:      stringField(exports.Tab, contract.FieldTitle),
		Remote:     desc,
		Slices:     keys,
		MountedAt:  r.now(),
	}

	r.mu.Lock()
	previous := r.active
	r.mounted[name] = m
	r.active = m.TabID
	r.mu.Unlock()

	r.logger.Info().
		Str("module", name).
		Str("instance", m.InstanceID).
		Str("source", string(desc.Source)).
		Strs("slices", keys).
		Msg("module mounted")
	r.activated(ResultOK)

	r.bus.Publish(ctx, m.InstanceID, events.TabActivatedPayload{
		TabID:         m.TabID,
		PreviousTabID: previousTab(previous, m.TabID),
	})
	return m, nil
}

// Deactivate unmounts the named module, drops its state namespaces and
// announces it with a tab:deactivated event.
func (r *Runtime) Deactivate(ctx context.Context, name string) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	m, ok := r.get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, name)
	}

	r.removeSlices(name, m.Slices)
	count := r.forget(name)

	r.logger.Info().Str("module", name).Str("instance", m.InstanceID).Msg("module unmounted")
	if r.recorder != nil {
		r.recorder.ModulesChanged(count)
	}

	r.bus.Publish(ctx, m.InstanceID, events.TabDeactivatedPayload{TabID: m.TabID})
	return nil
}

// Mounted returns the mounted modules ordered by name.
func (r *Runtime) Mounted() []Mount {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Mount, 0, len(r.mounted))
	for _, m := range r.mounted {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsMounted reports whether the named module is mounted.
func (r *Runtime) IsMounted(name string) bool {
	_, ok := r.get(name)
	return ok
}

func (r *Runtime) get(name string) (Mount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mounted[name]
	return m, ok
}

func (r *Runtime) forget(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.mounted[name]; ok && r.active == m.TabID {
		r.active = ""
	}
	delete(r.mounted, name)
	return len(r.mounted)
}

// injectSlices registers slices in key order for module and rolls back on
// failure. A key already owned by another mounted module is taken over: it
// leaves that module's mount so unmounting it later does not drop the key.
func (r *Runtime) injectSlices(module string, slices map[string]store.Reducer) ([]string, error) {
	keys := make([]string, 0, len(slices))
	for k := range slices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if err := r.store.InjectSlice(k, slices[k]); err != nil {
			r.removeSlices(module, keys[:i])
			return nil, fmt.Errorf("inject slice %q: %w", k, err)
		}
		r.claim(module, k)
	}
	return keys, nil
}

// claim records module as the owner of key, detaching it from a previous owner.
func (r *Runtime) claim(module, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, owned := r.owners[key]
	r.owners[key] = module
	if !owned || prev == module {
		return
	}

	m, ok := r.mounted[prev]
	if !ok {
		return
	}
	kept := make([]string, 0, len(m.Slices))
	for _, k := range m.Slices {
		if k != key {
			kept = append(kept, k)
		}
	}
	m.Slices = kept
	r.mounted[prev] = m

	r.logger.Warn().
		Str("slice", key).
		Str("from", prev).
		Str("to", module).
		Msg("slice taken over by another module")
}

// removeSlices drops the keys module still owns.
func (r *Runtime) removeSlices(module string, keys []string) {
	for _, k := range keys {
		r.mu.Lock()
		owner, ok := r.owners[k]
		if ok && owner == module {
			delete(r.owners, k)
		}
		r.mu.Unlock()

		if ok && owner != module {
			continue
		}
		r.store.RemoveSlice(k)
	}
}

func (r *Runtime) activated(result string) {
	if r.recorder == nil {
		return
	}
	r.mu.RLock()
	count := len(r.mounted)
	r.mu.RUnlock()
	r.recorder.ModuleActivated(result, count)
}

func (r *Runtime) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now()
}

func stringField(c contract.Candidate, field string) string {
	s, _ := c[field].(string)
	return s
}

func previousTab(previous, current string) string {
	if previous == current {
		return ""
	}
	return previous
}
