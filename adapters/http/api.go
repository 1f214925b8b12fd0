package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/shellgate/app"
	"github.com/artpar/shellgate/core/contract"
	"github.com/artpar/shellgate/core/events"
	"github.com/artpar/shellgate/core/platform"
	"github.com/artpar/shellgate/domain/remote"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// EventSourceHeader names the publisher of an event posted over HTTP.
const EventSourceHeader = "X-Event-Source"

// ContractRecorder receives contract validation outcomes.
type ContractRecorder interface {
	ContractValidated(valid bool)
}

// API serves the resolver, module, state and event endpoints.
type API struct {
	overrides *app.OverrideService
	runtime   *platform.Runtime
	recorder  ContractRecorder
	logger    zerolog.Logger
}

// NewAPI creates the API handlers.
func NewAPI(overrides *app.OverrideService, runtime *platform.Runtime, recorder ContractRecorder, logger zerolog.Logger) *API {
	return &API{
		overrides: overrides,
		runtime:   runtime,
		recorder:  recorder,
		logger:    logger,
	}
}

// RequestInputs extracts the per-request override inputs.
func RequestInputs(r *http.Request) remote.Inputs {
	return remote.Inputs{
		Query: r.URL.Query(),
		Cookie: func(name string) (string, bool) {
			c, err := r.Cookie(name)
			if err != nil {
				return "", false
			}
			return c.Value, true
		},
	}
}

// RemotesResponse is the manifest a host page requests at boot.
type RemotesResponse struct {
	Remotes []remote.Descriptor `json:"remotes"`
}

// ListRemotes resolves every configured remote for this request.
func (a *API) ListRemotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RemotesResponse{
		Remotes: a.overrides.ResolveAll(r.Context(), RequestInputs(r)),
	})
}

// ResolveRemote resolves one module. Unknown names need ?default=.
func (a *API) ResolveRemote(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	def := r.URL.Query().Get("default")
	if def == "" {
		m, ok := a.overrides.Lookup(name)
		if !ok {
			msg := "remote " + strconv.Quote(name) + " is not configured; pass ?default= to resolve it anyway"
			if s := a.overrides.Suggest(name); s != "" {
				msg += " (did you mean " + strconv.Quote(s) + "?)"
			}
			writeError(w, http.StatusNotFound, "unknown_remote", msg)
			return
		}
		def = m.DefaultAddress
	}

	writeJSON(w, http.StatusOK, a.overrides.Resolve(r.Context(), RequestInputs(r), name, def))
}

// OverridesResponse lists the persisted overrides.
type OverridesResponse struct {
	Overrides map[string]string `json:"overrides"`
}

// ListOverrides returns the persisted overrides.
func (a *API) ListOverrides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OverridesResponse{Overrides: a.overrides.ListOverrides(r.Context())})
}

// SetOverrideRequest is the body of PUT /admin/overrides/{name}.
type SetOverrideRequest struct {
	Address string `json:"address"`
}

// SetOverride writes one override.
func (a *API) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req SetOverrideRequest
	if !a.decode(w, r, &req) {
		return
	}

	name := chi.URLParam(r, "name")
	if err := a.overrides.Override(r.Context(), name, req.Address); err != nil {
		a.overrideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OverridesResponse{Overrides: a.overrides.ListOverrides(r.Context())})
}

// ClearOverride removes one override.
func (a *API) ClearOverride(w http.ResponseWriter, r *http.Request) {
	if err := a.overrides.ClearOverride(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.overrideError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearOverrides removes every override.
func (a *API) ClearOverrides(w http.ResponseWriter, r *http.Request) {
	if err := a.overrides.ClearOverrides(r.Context()); err != nil {
		a.overrideError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UseStaging points every remote at staging.
func (a *API) UseStaging(w http.ResponseWriter, r *http.Request) {
	written, err := a.overrides.UseStaging(r.Context())
	if err != nil {
		a.overrideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OverridesResponse{Overrides: written})
}

// TestPRResponse reports the preview address written.
type TestPRResponse struct {
	Module  string `json:"module"`
	PR      int    `json:"pr"`
	Address string `json:"address"`
}

// TestPR points one module at a pull request preview.
func (a *API) TestPR(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	pr, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pr_number", "pr number must be an integer")
		return
	}

	addr, err := a.overrides.TestPR(r.Context(), name, pr)
	if err != nil {
		a.overrideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TestPRResponse{Module: name, PR: pr, Address: addr})
}

func (a *API) overrideError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidPRNumber):
		writeError(w, http.StatusBadRequest, "invalid_pr_number", err.Error())
	case errors.Is(err, app.ErrEmptyModuleName), errors.Is(err, app.ErrEmptyAddress):
		writeError(w, http.StatusBadRequest, "invalid_override", err.Error())
	default:
		a.internalError(w, r, err)
	}
}

// ContractResponse reports a validation outcome.
type ContractResponse struct {
	Valid   bool                           `json:"valid"`
	Errors  map[contract.Category][]string `json:"errors,omitempty"`
	Message string                         `json:"message,omitempty"`
}

// ValidateContract validates a JSON tab manifest.
func (a *API) ValidateContract(w http.ResponseWriter, r *http.Request) {
	var manifest map[string]any
	if !a.decode(w, r, &manifest) {
		return
	}

	result := contract.ValidateTabModuleContract(contract.FromManifest(manifest))
	if a.recorder != nil {
		a.recorder.ContractValidated(result.Valid)
	}

	resp := ContractResponse{Valid: result.Valid}
	if !result.Valid {
		resp.Errors = result.Errors
		resp.Message = contract.FormatValidationErrors(result)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ModulesResponse lists mounted modules.
type ModulesResponse struct {
	Modules []platform.Mount `json:"modules"`
}

// ListModules returns mounted modules.
func (a *API) ListModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModulesResponse{Modules: a.runtime.Mounted()})
}

// ActivateModule mounts a module.
func (a *API) ActivateModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, err := a.runtime.Activate(r.Context(), name)

	var ce *platform.ContractError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, m)
	case errors.Is(err, platform.ErrUnknownRemote):
		writeError(w, http.StatusNotFound, "unknown_remote", err.Error())
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, ContractResponse{
			Valid:   false,
			Errors:  ce.Result.Errors,
			Message: contract.FormatValidationErrors(ce.Result),
		})
	default:
		// The loader error can carry the fetched body; it stays in the log.
		a.logger.Warn().
			Err(err).
			Str("module", name).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("module activation failed")
		writeError(w, http.StatusBadGateway, "module_load_failed", "module "+strconv.Quote(name)+" could not be loaded")
	}
}

// DeactivateModule unmounts a module.
func (a *API) DeactivateModule(w http.ResponseWriter, r *http.Request) {
	err := a.runtime.Deactivate(r.Context(), chi.URLParam(r, "name"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, platform.ErrNotMounted):
		writeError(w, http.StatusNotFound, "not_mounted", err.Error())
	default:
		a.internalError(w, r, err)
	}
}

// StateResponse is a snapshot of the state container.
type StateResponse struct {
	Keys  []string       `json:"keys"`
	State map[string]any `json:"state"`
}

// State returns the current state snapshot.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	st := a.runtime.Store()
	writeJSON(w, http.StatusOK, StateResponse{Keys: st.Keys(), State: st.State()})
}

// EventsResponse lists the event catalog.
type EventsResponse struct {
	Events []EventInfo `json:"events"`
}

// EventInfo describes one catalog entry.
type EventInfo struct {
	Name        events.Name `json:"name"`
	Subscribers int         `json:"subscribers"`
}

// ListEvents returns the event catalog with subscriber counts.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	bus := a.runtime.Bus()
	names := events.Names()
	out := make([]EventInfo, 0, len(names))
	for _, n := range names {
		out = append(out, EventInfo{Name: n, Subscribers: bus.SubscriberCount(n)})
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: out})
}

// PublishResponse acknowledges a published event.
type PublishResponse struct {
	Event       events.Name `json:"event"`
	Source      string      `json:"source"`
	Subscribers int         `json:"subscribers"`
}

// PublishEvent decodes and publishes one catalog event.
func (a *API) PublishEvent(w http.ResponseWriter, r *http.Request) {
	name := events.Name(chi.URLParam(r, "name"))
	if !events.Known(name) {
		writeError(w, http.StatusNotFound, "unknown_event", "event "+strconv.Quote(string(name))+" is not in the catalog")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	payload, err := events.Decode(name, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	source := strings.TrimSpace(r.Header.Get(EventSourceHeader))
	if source == "" {
		source = "http"
	}

	bus := a.runtime.Bus()
	bus.Publish(r.Context(), source, payload)

	writeJSON(w, http.StatusAccepted, PublishResponse{
		Event:       name,
		Source:      source,
		Subscribers: bus.SubscriberCount(name),
	})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
