package config_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/artpar/shellgate/config"
	"github.com/rs/zerolog"
)

func validConfig() string {
	return `
storage:
  driver: memory

remotes:
  - name: shared_data
    default_address: "https://cdn/shared_data/remoteEntry.js"
`
}

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if len(got.Remotes) != 1 || got.Remotes[0].Name != "shared_data" {
		t.Errorf("Remotes = %+v", got.Remotes)
	}
	if h.Path() == "" {
		t.Error("Path() is empty")
	}
}

func TestHolder_NewHolderInvalid(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: loud\n")

	if _, err := config.NewHolder(path, zerolog.Nop()); err == nil {
		t.Error("expected error for invalid initial config")
	}
}

func TestHolder_ReloadAndOnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var got *config.Config
	h.OnChange(func(cfg *config.Config) { got = cfg })

	newContent := `
storage:
  driver: memory
logging:
  level: debug
remotes:
  - name: shared_data
    default_address: "https://cdn/shared_data/remoteEntry.js"
  - name: settings
    default_address: "https://cdn/settings/remoteEntry.js"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if got == nil {
		t.Fatal("OnChange callback not called")
	}
	if len(h.Get().Remotes) != 2 || h.Get().Logging.Level != "debug" {
		t.Errorf("after reload config = %+v", h.Get())
	}
	if got != h.Get() {
		t.Error("callback should receive the new config")
	}
}

func TestHolder_ReloadInvalidConfigKeepsOld(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	called := false
	h.OnChange(func(*config.Config) { called = true })
	var reloadErr error
	h.OnError(func(err error) { reloadErr = err })

	if err := os.WriteFile(path, []byte("remotes:\n  - name: x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error")
	}

	if called {
		t.Error("OnChange called for failed reload")
	}
	if reloadErr == nil {
		t.Error("OnError not called for failed reload")
	}
	if h.Get().Remotes[0].Name != "shared_data" {
		t.Errorf("old config not kept: %+v", h.Get().Remotes)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan struct{}, 16)
	h.OnChange(func(*config.Config) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	newContent := `
storage:
  driver: memory
remotes:
  - name: orders
    default_address: "https://cdn/orders/remoteEntry.js"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	// A truncating write can fire more than once; wait for the final content.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-changed:
			if r := h.Get().Remotes; len(r) == 1 && r[0].Name == "orders" {
				return
			}
		case <-deadline:
			t.Fatalf("file watcher did not reload the new config, Remotes = %+v", h.Get().Remotes)
		}
	}
}

func TestHolder_StopTwice(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	h.WatchSignals()
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.Get()
		}()
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := config.ReloadableFields()
	static := config.NonReloadableFields()

	seen := make(map[string]bool)
	for _, f := range reloadable {
		seen[f] = true
	}
	if !seen["remotes"] || !seen["logging.level"] {
		t.Errorf("ReloadableFields() = %v", reloadable)
	}
	for _, f := range static {
		if seen[f] {
			t.Errorf("%s listed as both reloadable and static", f)
		}
	}
}
