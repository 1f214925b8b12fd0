package app_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/artpar/shellgate/adapters/memory"
	"github.com/artpar/shellgate/app"
	"github.com/artpar/shellgate/domain/remote"
	"github.com/rs/zerolog"
)

// failingKVStore fails every operation.
type failingKVStore struct{}

func (failingKVStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("disk on fire")
}
func (failingKVStore) Set(ctx context.Context, key, value string) error {
	return errors.New("disk on fire")
}
func (failingKVStore) Remove(ctx context.Context, key string) error {
	return errors.New("disk on fire")
}

// recorder counts recorded activity.
type recorder struct {
	mu        sync.Mutex
	resolved  map[string]int
	mutations []string
}

func (r *recorder) Resolved(module, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved == nil {
		r.resolved = make(map[string]int)
	}
	r.resolved[module+"/"+source]++
}

func (r *recorder) OverrideChanged(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, op)
}

var testRemotes = []remote.Module{
	{Name: "shared_components", DefaultAddress: "https://cdn/shared_components/remoteEntry.js"},
	{Name: "shared_data", DefaultAddress: "https://cdn/shared_data/remoteEntry.js"},
	{Name: "top_level_shell", DefaultAddress: "https://cdn/top_level_shell/remoteEntry.js"},
}

func newOverrideService(t *testing.T) (*app.OverrideService, *memory.KVStore) {
	t.Helper()
	kv := memory.NewKVStore()
	svc := app.NewOverrideService(kv, app.OverrideConfig{Remotes: testRemotes}, zerolog.Nop())
	return svc, kv
}

func TestOverrideService_ResolveDefault(t *testing.T) {
	svc, _ := newOverrideService(t)

	d := svc.Resolve(context.Background(), remote.Inputs{}, "shared_data", "https://default/entry.js")
	if d.ResolvedAddress != "https://default/entry.js" || d.Source != remote.SourceEnvDefault {
		t.Errorf("Resolve() = %+v, want default", d)
	}
}

func TestOverrideService_OverrideThenResolve(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	if err := svc.Override(ctx, "shared_data", "https://staging/entry.js"); err != nil {
		t.Fatalf("Override: %v", err)
	}

	d := svc.Resolve(ctx, remote.Inputs{}, "shared_data", "https://default/entry.js")
	if d.ResolvedAddress != "https://staging/entry.js" || d.Source != remote.SourceClientStore {
		t.Errorf("Resolve() = %+v, want stored override", d)
	}
}

func TestOverrideService_QueryBeatsStore(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	_ = svc.Override(ctx, "shared_data", "https://stored/entry.js")
	in := remote.Inputs{Query: url.Values{"remote_shared_data": {"http://localhost:3001/remoteEntry.js"}}}

	d := svc.Resolve(ctx, in, "shared_data", "https://default/entry.js")
	if d.ResolvedAddress != "http://localhost:3001/remoteEntry.js" || d.Source != remote.SourceURLParam {
		t.Errorf("Resolve() = %+v, want query override", d)
	}
}

func TestOverrideService_CookieBeatsStore(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	_ = svc.Override(ctx, "shared_data", "https://stored/entry.js")
	in := remote.Inputs{Cookie: func(name string) (string, bool) {
		if name == "mf_shared_data" {
			return "https://cookie/entry.js", true
		}
		return "", false
	}}

	d := svc.Resolve(ctx, in, "shared_data", "https://default/entry.js")
	if d.Source != remote.SourceCookie || d.ResolvedAddress != "https://cookie/entry.js" {
		t.Errorf("Resolve() = %+v, want cookie override", d)
	}
}

func TestOverrideService_CorruptBlob(t *testing.T) {
	for _, raw := range []string{"{not json", "null", `["a"]`, `"str"`} {
		t.Run(raw, func(t *testing.T) {
			svc, kv := newOverrideService(t)
			ctx := context.Background()
			_ = kv.Set(ctx, remote.DefaultStoreKey, raw)

			d := svc.Resolve(ctx, remote.Inputs{}, "shared_data", "https://default/entry.js")
			if d.Source != remote.SourceEnvDefault {
				t.Errorf("Resolve() = %+v, want default on corrupt blob", d)
			}
			if got := svc.ListOverrides(ctx); len(got) != 0 {
				t.Errorf("ListOverrides() = %v, want empty", got)
			}

			// Writing recovers the blob.
			if err := svc.Override(ctx, "shared_data", "https://x/entry.js"); err != nil {
				t.Fatalf("Override: %v", err)
			}
			if got := svc.ListOverrides(ctx); got["shared_data"] != "https://x/entry.js" {
				t.Errorf("ListOverrides() = %v", got)
			}
		})
	}
}

func TestOverrideService_NonStringValuesDropped(t *testing.T) {
	svc, kv := newOverrideService(t)
	ctx := context.Background()
	_ = kv.Set(ctx, remote.DefaultStoreKey, `{"shared_data":"https://a/entry.js","bad":42}`)

	got := svc.ListOverrides(ctx)
	if len(got) != 1 || got["shared_data"] != "https://a/entry.js" {
		t.Errorf("ListOverrides() = %v", got)
	}
}

func TestOverrideService_StoreReadErrorIsNotFatal(t *testing.T) {
	svc := app.NewOverrideService(failingKVStore{}, app.OverrideConfig{Remotes: testRemotes}, zerolog.Nop())
	ctx := context.Background()

	d := svc.Resolve(ctx, remote.Inputs{}, "shared_data", "https://default/entry.js")
	if d.Source != remote.SourceEnvDefault {
		t.Errorf("Resolve() = %+v, want default", d)
	}
	if err := svc.Override(ctx, "shared_data", "https://x"); err == nil {
		t.Error("expected write error to surface from Override")
	}
}

func TestOverrideService_ClearOverride(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	_ = svc.Override(ctx, "shared_data", "https://a/entry.js")
	_ = svc.Override(ctx, "shared_components", "https://b/entry.js")

	if err := svc.ClearOverride(ctx, "top_level_shell"); err != nil {
		t.Fatalf("ClearOverride(absent): %v", err)
	}
	got := svc.ListOverrides(ctx)
	if len(got) != 2 || got["shared_data"] != "https://a/entry.js" || got["shared_components"] != "https://b/entry.js" {
		t.Errorf("absent clear changed blob: %v", got)
	}

	if err := svc.ClearOverride(ctx, "shared_data"); err != nil {
		t.Fatalf("ClearOverride: %v", err)
	}
	got = svc.ListOverrides(ctx)
	if _, ok := got["shared_data"]; ok || len(got) != 1 {
		t.Errorf("ListOverrides() = %v after clear", got)
	}
}

func TestOverrideService_ClearOverrides(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	_ = svc.Override(ctx, "shared_data", "https://a/entry.js")
	if err := svc.ClearOverrides(ctx); err != nil {
		t.Fatalf("ClearOverrides: %v", err)
	}
	if got := svc.ListOverrides(ctx); len(got) != 0 {
		t.Errorf("ListOverrides() = %v, want empty", got)
	}
}

func TestOverrideService_UseStaging(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	written, err := svc.UseStaging(ctx)
	if err != nil {
		t.Fatalf("UseStaging: %v", err)
	}
	if len(written) != len(testRemotes) {
		t.Fatalf("UseStaging wrote %d entries, want %d", len(written), len(testRemotes))
	}

	got := svc.ListOverrides(ctx)
	for _, m := range testRemotes {
		want := "https://staging.example.com/" + m.Name + "/remoteEntry.js"
		if got[m.Name] != want {
			t.Errorf("%s = %q, want %q", m.Name, got[m.Name], want)
		}
	}
}

func TestOverrideService_TestPR(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	addr, err := svc.TestPR(ctx, "shared_components", 42)
	if err != nil {
		t.Fatalf("TestPR: %v", err)
	}
	if !strings.Contains(addr, "pr-42") {
		t.Errorf("address %q does not contain pr-42", addr)
	}
	if got := svc.ListOverrides(ctx)["shared_components"]; !strings.Contains(got, "pr-42") {
		t.Errorf("stored override %q does not contain pr-42", got)
	}

	for _, pr := range []int{0, -3} {
		if _, err := svc.TestPR(ctx, "shared_components", pr); !errors.Is(err, app.ErrInvalidPRNumber) {
			t.Errorf("TestPR(%d) error = %v, want ErrInvalidPRNumber", pr, err)
		}
	}
}

func TestOverrideService_OverrideValidation(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	if err := svc.Override(ctx, " ", "https://x"); !errors.Is(err, app.ErrEmptyModuleName) {
		t.Errorf("empty name error = %v", err)
	}
	if err := svc.Override(ctx, "shared_data", ""); !errors.Is(err, app.ErrEmptyAddress) {
		t.Errorf("empty address error = %v", err)
	}
}

func TestOverrideService_UnknownRemoteStillWritten(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	if err := svc.Override(ctx, "shared_dta", "https://x/entry.js"); err != nil {
		t.Fatalf("Override: %v", err)
	}
	if got := svc.ListOverrides(ctx)["shared_dta"]; got != "https://x/entry.js" {
		t.Errorf("unknown remote override not written, got %q", got)
	}
}

func TestOverrideService_Suggest(t *testing.T) {
	svc, _ := newOverrideService(t)

	tests := []struct {
		in   string
		want string
	}{
		{"shared_dta", "shared_data"},
		{"shared_component", "shared_components"},
		{"top_level_shel", "top_level_shell"},
		{"billing", ""},
	}
	for _, tt := range tests {
		if got := svc.Suggest(tt.in); got != tt.want {
			t.Errorf("Suggest(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOverrideService_ResolveAll(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()
	rec := &recorder{}
	svc.SetRecorder(rec)

	_ = svc.Override(ctx, "shared_data", "https://staging/entry.js")

	got := svc.ResolveAll(ctx, remote.Inputs{})
	if len(got) != len(testRemotes) {
		t.Fatalf("ResolveAll returned %d descriptors", len(got))
	}
	for i, d := range got {
		if d.Name != testRemotes[i].Name {
			t.Errorf("descriptor %d = %q, want configured order", i, d.Name)
		}
	}
	if got[1].Source != remote.SourceClientStore {
		t.Errorf("shared_data source = %s", got[1].Source)
	}
	if rec.resolved["shared_data/client_store"] != 1 || rec.resolved["top_level_shell/env_default"] != 1 {
		t.Errorf("recorded resolutions = %v", rec.resolved)
	}
	if len(rec.mutations) != 1 || rec.mutations[0] != "set" {
		t.Errorf("recorded mutations = %v", rec.mutations)
	}
}

func TestOverrideService_Reconfigure(t *testing.T) {
	svc, kv := newOverrideService(t)
	ctx := context.Background()

	svc.Reconfigure(app.OverrideConfig{
		Remotes:  []remote.Module{{Name: "settings", DefaultAddress: "https://cdn/settings.js"}},
		Naming:   remote.Naming{QueryPrefix: "mfe_"},
		StoreKey: "dev_overrides",
	})

	if _, ok := svc.Lookup("shared_data"); ok {
		t.Error("old remote still configured")
	}
	if len(svc.Remotes()) != 1 {
		t.Errorf("Remotes() = %v", svc.Remotes())
	}

	in := remote.Inputs{Query: url.Values{"mfe_settings": {"http://localhost:4000/entry.js"}}}
	if d := svc.Resolve(ctx, in, "settings", "https://cdn/settings.js"); d.Source != remote.SourceURLParam {
		t.Errorf("custom query prefix ignored: %+v", d)
	}

	_ = svc.Override(ctx, "settings", "https://x/entry.js")
	if _, err := kv.Get(ctx, "dev_overrides"); err != nil {
		t.Errorf("override not written under new store key: %v", err)
	}
}

func TestOverrideService_ConcurrentOverrides(t *testing.T) {
	svc, _ := newOverrideService(t)
	ctx := context.Background()

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_ = svc.Override(ctx, n, "https://"+n)
		}(n)
	}
	wg.Wait()

	got := svc.ListOverrides(ctx)
	if len(got) != len(names) {
		t.Errorf("lost writes: %v", got)
	}
	if sorted := app.SortedOverrideNames(got); sorted[0] != "a" || sorted[len(sorted)-1] != "h" {
		t.Errorf("SortedOverrideNames() = %v", sorted)
	}
}
