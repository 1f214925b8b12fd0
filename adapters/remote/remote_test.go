package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/artpar/shellgate/core/contract"
	"github.com/artpar/shellgate/core/store"
	"github.com/rs/zerolog"
)

// =============================================================================
// Client Tests (remote.go)
// =============================================================================

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient(ClientConfig{})
	if c.httpClient.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", c.httpClient.Timeout)
	}

	c = NewClient(ClientConfig{Timeout: 3 * time.Second})
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", c.httpClient.Timeout)
	}
}

func TestClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("X-Env") != "dev" {
			t.Errorf("custom header missing")
		}
		w.Write([]byte(`{"hello":"world"}`))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{
		Headers:      map[string]string{"X-Env": "dev"},
		AllowedHosts: []string{"127.0.0.1"},
	})

	var out map[string]string
	if err := c.GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out["hello"] != "world" {
		t.Errorf("decoded = %v", out)
	}
}

func TestClient_GetJSON_Allowlist(t *testing.T) {
	var gotAuth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	headers := map[string]string{"Authorization": "Bearer cdn-secret"}
	ctx := context.Background()
	var out map[string]any

	tests := []struct {
		name     string
		allowed  []string
		wantErr  error
		wantAuth string
	}{
		{"host listed", []string{"127.0.0.1"}, nil, "Bearer cdn-secret"},
		{"host and port listed", []string{u.Host}, nil, "Bearer cdn-secret"},
		{"no allowlist fetches without credentials", nil, nil, ""},
		{"host not listed", []string{"cdn.example.com"}, ErrHostNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAuth = nil
			c := NewClient(ClientConfig{Headers: headers, AllowedHosts: tt.allowed})

			err := c.GetJSON(ctx, server.URL+"/manifest.json", &out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if len(gotAuth) != 0 {
					t.Error("request sent to a host outside the allowlist")
				}
				return
			}
			if len(gotAuth) != 1 || gotAuth[0] != tt.wantAuth {
				t.Errorf("Authorization = %v, want %q", gotAuth, tt.wantAuth)
			}
		})
	}
}

func TestClient_GetJSON_RejectsScheme(t *testing.T) {
	c := NewClient(ClientConfig{})
	var out map[string]any
	for _, addr := range []string{"file:///etc/passwd", "gopher://x", "::bad"} {
		if err := c.GetJSON(context.Background(), addr, &out); err == nil {
			t.Errorf("GetJSON(%q) succeeded", addr)
		}
	}
}

func TestClient_GetJSON_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.Error(w, "no such build", http.StatusNotFound)
		case "/broken":
			w.Write([]byte("<html>"))
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))
	defer server.Close()

	c := NewClient(ClientConfig{})
	ctx := context.Background()
	var out map[string]any

	err := c.GetJSON(ctx, server.URL+"/missing", &out)
	if !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	err = c.GetJSON(ctx, server.URL+"/other", &out)
	var re *RemoteError
	if !errors.As(err, &re) || re.StatusCode != http.StatusBadGateway {
		t.Errorf("expected RemoteError 502, got %v", err)
	}
	if IsNotFound(err) {
		t.Error("502 reported as not found")
	}

	if err := c.GetJSON(ctx, server.URL+"/broken", &out); err == nil {
		t.Error("expected decode error")
	}
}

// =============================================================================
// Loader Tests (loader.go)
// =============================================================================

func TestManifestLoader_Load(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"tab": {"id": "orders", "title": "Orders", "component": "OrdersTab", "icon": {"export": "OrdersIcon"}},
			"state": {"orders": {"selected": null}, "orders_filter": "open"}
		}`))
	}))
	defer server.Close()

	loader := NewManifestLoader(NewClient(ClientConfig{}), zerolog.Nop())
	exports, err := loader.Load(context.Background(), server.URL+"/orders/remoteEntry.js")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if r := contract.ValidateContract(exports.Tab); !r.Valid {
		t.Fatalf("loaded contract invalid: %v", r.Errors)
	}
	if ref, ok := exports.Tab[contract.FieldComponent].(contract.ExportRef); !ok || ref.Export != "OrdersTab" {
		t.Errorf("component = %#v", exports.Tab[contract.FieldComponent])
	}
	if ref, ok := exports.Tab[contract.FieldIcon].(contract.ExportRef); !ok || ref.Export != "OrdersIcon" {
		t.Errorf("icon = %#v", exports.Tab[contract.FieldIcon])
	}

	if len(exports.Slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(exports.Slices))
	}
	filter := exports.Slices["orders_filter"]
	if got := filter(nil, store.Action{Type: store.InitAction}); got != "open" {
		t.Errorf("orders_filter initial = %v", got)
	}
	if got := filter("open", store.Action{Type: store.SetActionType("orders_filter"), Payload: "closed"}); got != "closed" {
		t.Errorf("orders_filter after set = %v", got)
	}
}

func TestManifestLoader_LoadFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	loader := NewManifestLoader(NewClient(ClientConfig{}), zerolog.Nop())
	_, err := loader.Load(context.Background(), server.URL)
	if !IsNotFound(err) {
		t.Errorf("expected wrapped not found error, got %v", err)
	}
}

func TestManifest_NoState(t *testing.T) {
	m := Manifest{Tab: map[string]any{"id": "a", "title": "A", "component": "A"}}
	exports := m.Exports()
	if exports.Slices != nil {
		t.Errorf("expected no slices, got %v", exports.Slices)
	}
	if len(m.SliceKeys()) != 0 {
		t.Errorf("SliceKeys() = %v", m.SliceKeys())
	}
}

func TestManifest_ExportsCopyInitialState(t *testing.T) {
	m := Manifest{
		Tab:   map[string]any{"id": "orders", "title": "Orders", "component": "OrdersTab"},
		State: map[string]any{"orders": map[string]any{"selected": nil}},
	}
	reducer := m.Exports().Slices["orders"]

	first := reducer(nil, store.Action{Type: store.InitAction}).(map[string]any)
	first["selected"] = "o-1"

	second := reducer(nil, store.Action{Type: store.InitAction}).(map[string]any)
	if second["selected"] != nil {
		t.Errorf("default corrupted by earlier mutation: %v", second)
	}
	if m.State["orders"].(map[string]any)["selected"] != nil {
		t.Error("manifest state mutated")
	}
}
