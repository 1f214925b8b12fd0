package metrics_test

import (
	"errors"
	"testing"

	"github.com/artpar/shellgate/adapters/metrics"
	"github.com/artpar/shellgate/core/events"
	"github.com/artpar/shellgate/core/store"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Compile-time checks that the collector observes the bus and the store.
var (
	_ events.Observer = (*metrics.Collector)(nil)
	_ store.Observer  = (*metrics.Collector)(nil)
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func counterValue(f *dto.MetricFamily, labels map[string]string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.RequestsTotal == nil || m.Resolutions == nil || m.EventsPublished == nil {
		t.Error("expected metrics to be initialized")
	}
	if m.StateSlices == nil || m.ContractValidations == nil || m.ConfigReloads == nil {
		t.Error("expected metrics to be initialized")
	}
}

func TestResolved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.Resolved("shared_data", "url_param")
	m.Resolved("shared_data", "url_param")
	m.Resolved("settings", "env_default")

	f := gather(t, reg, "shellgate_resolutions_total")
	if f == nil {
		t.Fatal("shellgate_resolutions_total not found")
	}
	if len(f.GetMetric()) != 2 {
		t.Errorf("expected 2 series, got %d", len(f.GetMetric()))
	}
	if v := counterValue(f, map[string]string{"module": "shared_data", "source": "url_param"}); v != 2 {
		t.Errorf("shared_data/url_param = %v, want 2", v)
	}
}

func TestObserverMethods(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.EventPublished("file:selected", 3)
	m.HandlerFailed("file:selected")
	m.SlicesChanged(4)

	if v := counterValue(gather(t, reg, "shellgate_events_published_total"), map[string]string{"event": "file:selected"}); v != 1 {
		t.Errorf("events_published_total = %v, want 1", v)
	}
	if v := counterValue(gather(t, reg, "shellgate_event_handler_failures_total"), map[string]string{"event": "file:selected"}); v != 1 {
		t.Errorf("event_handler_failures_total = %v, want 1", v)
	}

	f := gather(t, reg, "shellgate_state_slices")
	if f == nil || f.GetMetric()[0].GetGauge().GetValue() != 4 {
		t.Errorf("state_slices gauge not set to 4")
	}
}

func TestModuleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ContractValidated(true)
	m.ContractValidated(false)
	m.ModuleActivated("ok", 1)
	m.ModuleActivated("invalid_contract", 1)
	m.ModulesChanged(0)

	if v := counterValue(gather(t, reg, "shellgate_contract_validations_total"), map[string]string{"result": "invalid"}); v != 1 {
		t.Errorf("contract_validations_total{invalid} = %v, want 1", v)
	}
	if v := counterValue(gather(t, reg, "shellgate_module_activations_total"), map[string]string{"result": "ok"}); v != 1 {
		t.Errorf("module_activations_total{ok} = %v, want 1", v)
	}
	f := gather(t, reg, "shellgate_modules_mounted")
	if f == nil || f.GetMetric()[0].GetGauge().GetValue() != 0 {
		t.Errorf("modules_mounted gauge should be 0")
	}
}

func TestNilCollector(t *testing.T) {
	var m *metrics.Collector

	// None of these may panic.
	m.EventPublished("x", 0)
	m.HandlerFailed("x")
	m.SlicesChanged(1)
	m.Resolved("a", "b")
	m.OverrideChanged("set")
	m.ContractValidated(true)
	m.ModuleActivated("ok", 1)
	m.ModulesChanged(0)
	m.ConfigReloaded(nil)
}

func TestConfigReloaded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ConfigReloaded(nil)
	m.ConfigReloaded(errors.New("bad yaml"))
	m.ConfigReloaded(nil)

	if v := counterValue(gather(t, reg, "shellgate_config_reloads_total"), nil); v != 2 {
		t.Errorf("config_reloads_total = %v, want 2", v)
	}
	if v := counterValue(gather(t, reg, "shellgate_config_reload_errors_total"), nil); v != 1 {
		t.Errorf("config_reload_errors_total = %v, want 1", v)
	}
	if f := gather(t, reg, "shellgate_config_last_reload_timestamp"); f == nil || f.GetMetric()[0].GetGauge().GetValue() == 0 {
		t.Error("config_last_reload_timestamp not set")
	}
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewWithRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic registering the same collector twice")
		}
	}()
	metrics.NewWithRegistry(reg)
}
