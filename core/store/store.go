// Package store provides a reducer-based state container whose namespaces
// ("slices") can be added and removed after start-up.
//
// The container keeps an ordered key -> Reducer registry. Every change to the
// registry rebuilds the combining reducer together with the resulting state and
// publishes both with a single pointer swap, so readers never observe a
// half-built combination.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// InitAction is dispatched to a reducer to obtain its default state.
const InitAction = "@@INIT"

// ErrReducerPanic wraps a panic raised by reducer code.
var ErrReducerPanic = errors.New("reducer panicked")

// Action is dispatched through the container.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Reducer computes the next state of one namespace. Called with a nil state
// and InitAction it must return the namespace default.
type Reducer func(state any, action Action) any

// Observer receives registry size changes, typically a metrics collector.
type Observer interface {
	SlicesChanged(count int)
}

// snapshot is the unit swapped on every change: the ordered registry, the
// combining reducer built from it, and the state it produced.
type snapshot struct {
	keys     []string
	reducers map[string]Reducer
	combined func(state map[string]any, action Action) map[string]any
	state    map[string]any
}

// Store is an extensible state container.
type Store struct {
	// mu serialises writers; readers go through current.
	mu        sync.Mutex
	current   atomic.Pointer[snapshot]
	listeners map[uint64]func()
	nextID    uint64
	observer  Observer
	logger    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithObserver attaches an observer notified when the slice count changes.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New creates a store from the initial slices. Keys are registered in sorted
// order since map iteration order is unspecified; use NewOrdered to control it.
func New(logger zerolog.Logger, initial map[string]Reducer, opts ...Option) *Store {
	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slices := make([]Slice, 0, len(keys))
	for _, k := range keys {
		slices = append(slices, Slice{Key: k, Reducer: initial[k]})
	}
	return NewOrdered(logger, slices, opts...)
}

// Slice is a namespace registration.
type Slice struct {
	Key     string
	Reducer Reducer
}

// NewOrdered creates a store from slices in the given order.
// A repeated key replaces the earlier registration.
func NewOrdered(logger zerolog.Logger, slices []Slice, opts ...Option) *Store {
	s := &Store{
		listeners: make(map[uint64]func()),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	var keys []string
	reducers := make(map[string]Reducer, len(slices))
	for _, sl := range slices {
		if sl.Reducer == nil {
			continue
		}
		if _, exists := reducers[sl.Key]; !exists {
			keys = append(keys, sl.Key)
		}
		reducers[sl.Key] = sl.Reducer
	}

	state := make(map[string]any, len(keys))
	registered := keys[:0]
	for _, k := range keys {
		initial, err := initialState(reducers[k])
		if err != nil {
			s.logger.Error().Err(err).Str("slice", k).Msg("slice reducer failed to initialise, skipping it")
			delete(reducers, k)
			continue
		}
		state[k] = initial
		registered = append(registered, k)
	}
	keys = registered

	s.current.Store(build(keys, reducers, state))
	s.notifyObserver(len(keys))
	return s
}

// build assembles a snapshot and its combining reducer from a registry.
func build(keys []string, reducers map[string]Reducer, state map[string]any) *snapshot {
	frozenKeys := append([]string(nil), keys...)
	frozen := make(map[string]Reducer, len(reducers))
	for k, r := range reducers {
		frozen[k] = r
	}

	combined := func(prev map[string]any, action Action) map[string]any {
		next := make(map[string]any, len(frozenKeys))
		for _, k := range frozenKeys {
			next[k] = frozen[k](prev[k], action)
		}
		return next
	}

	return &snapshot{
		keys:     frozenKeys,
		reducers: frozen,
		combined: combined,
		state:    state,
	}
}

// InjectSlice adds a namespace. If key already exists it is replaced: a
// warning is logged and its state is reinitialised from reducer's default.
// All other namespaces keep their current values. A reducer that panics while
// producing its default is rejected and the registry is left unchanged.
func (s *Store) InjectSlice(key string, reducer Reducer) error {
	if key == "" {
		return fmt.Errorf("inject slice: empty key")
	}
	if reducer == nil {
		return fmt.Errorf("inject slice %q: nil reducer", key)
	}

	initial, err := initialState(reducer)
	if err != nil {
		s.logger.Error().Err(err).Str("slice", key).Msg("slice reducer failed to initialise")
		return fmt.Errorf("inject slice %q: %w", key, err)
	}

	count, replaced := s.swapIn(key, reducer, initial)
	if replaced {
		s.logger.Warn().Str("slice", key).Msg("slice already exists, replacing it")
	}

	s.logger.Debug().Str("slice", key).Int("slices", count).Msg("slice injected")
	s.notifyObserver(count)
	s.notifyListeners()
	return nil
}

func (s *Store) swapIn(key string, reducer Reducer, initial any) (count int, replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	keys := prev.keys
	if _, replaced = prev.reducers[key]; !replaced {
		keys = append(append([]string(nil), keys...), key)
	}

	reducers := make(map[string]Reducer, len(prev.reducers)+1)
	for k, r := range prev.reducers {
		reducers[k] = r
	}
	reducers[key] = reducer

	state := make(map[string]any, len(keys))
	for k, v := range prev.state {
		state[k] = v
	}
	state[key] = initial

	s.current.Store(build(keys, reducers, state))
	return len(keys), replaced
}

// RemoveSlice removes a namespace and discards its state.
// Removing an absent key logs a warning and does nothing.
func (s *Store) RemoveSlice(key string) {
	count, ok := s.swapOut(key)
	if !ok {
		s.logger.Warn().Str("slice", key).Msg("slice does not exist, nothing to remove")
		return
	}

	s.logger.Debug().Str("slice", key).Int("slices", count).Msg("slice removed")
	s.notifyObserver(count)
	s.notifyListeners()
}

func (s *Store) swapOut(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	if _, exists := prev.reducers[key]; !exists {
		return len(prev.keys), false
	}

	keys := make([]string, 0, len(prev.keys)-1)
	for _, k := range prev.keys {
		if k != key {
			keys = append(keys, k)
		}
	}

	reducers := make(map[string]Reducer, len(keys))
	state := make(map[string]any, len(keys))
	for _, k := range keys {
		reducers[k] = prev.reducers[k]
		state[k] = prev.state[k]
	}

	s.current.Store(build(keys, reducers, state))
	return len(keys), true
}

// Dispatch runs action through every namespace reducer and stores the result.
// If a reducer panics the state is left unchanged and the panic is returned
// as an error wrapping ErrReducerPanic.
func (s *Store) Dispatch(action Action) error {
	if err := s.reduce(action); err != nil {
		s.logger.Error().Err(err).Str("action", action.Type).Msg("dispatch failed, state unchanged")
		return err
	}

	s.notifyListeners()
	return nil
}

func (s *Store) reduce(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	var state map[string]any
	if err := recoverPanic(func() { state = prev.combined(prev.state, action) }); err != nil {
		return fmt.Errorf("dispatch %q: %w: %v", action.Type, ErrReducerPanic, err)
	}

	s.current.Store(&snapshot{
		keys:     prev.keys,
		reducers: prev.reducers,
		combined: prev.combined,
		state:    state,
	})
	return nil
}

// State returns a shallow copy of the current state keyed by namespace.
func (s *Store) State() map[string]any {
	snap := s.current.Load()
	out := make(map[string]any, len(snap.state))
	for k, v := range snap.state {
		out[k] = v
	}
	return out
}

// Get returns the state of one namespace.
func (s *Store) Get(key string) (any, bool) {
	snap := s.current.Load()
	v, ok := snap.state[key]
	return v, ok
}

// Keys returns the registered namespaces in registration order.
func (s *Store) Keys() []string {
	return append([]string(nil), s.current.Load().keys...)
}

// Has reports whether a namespace is registered.
func (s *Store) Has(key string) bool {
	_, ok := s.current.Load().reducers[key]
	return ok
}

// Subscribe registers a listener called after every dispatch and registry change.
// The returned function removes it and is safe to call more than once.
func (s *Store) Subscribe(listener func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners[id] = listener

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notifyListeners() {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if err := recoverPanic(fn); err != nil {
			s.logger.Error().Err(err).Msg("store listener panicked")
		}
	}
}

// initialState asks reducer for its default.
func initialState(reducer Reducer) (any, error) {
	var state any
	if err := recoverPanic(func() { state = reducer(nil, Action{Type: InitAction}) }); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReducerPanic, err)
	}
	return state, nil
}

// recoverPanic runs fn and turns a panic into an error.
func recoverPanic(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

func (s *Store) notifyObserver(count int) {
	if s.observer != nil {
		s.observer.SlicesChanged(count)
	}
}
