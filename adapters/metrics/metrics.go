// Package metrics provides Prometheus metrics collection for shellgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shellgate"

// Collector holds all Prometheus metrics for shellgate.
//
// All recording methods are safe to call on a nil *Collector so that
// services can run without metrics wired in.
type Collector struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Resolver metrics
	Resolutions       *prometheus.CounterVec
	OverrideMutations *prometheus.CounterVec

	// Event bus metrics
	EventsPublished *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec

	// State metrics
	StateSlices prometheus.Gauge

	// Module metrics
	ContractValidations *prometheus.CounterVec
	ModuleActivations   *prometheus.CounterVec
	ModulesMounted      prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Remote address resolutions by module and winning source",
			},
			[]string{"module", "source"},
		),
		OverrideMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "override_mutations_total",
				Help:      "Persisted override changes by operation",
			},
			[]string{"op"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Events published on the bus",
			},
			[]string{"event"},
		),
		HandlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_failures_total",
				Help:      "Event handlers that returned an error or panicked",
			},
			[]string{"event"},
		),

		StateSlices: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state_slices",
				Help:      "Number of registered state namespaces",
			},
		),

		ContractValidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "contract_validations_total",
				Help:      "Tab contract validations by result",
			},
			[]string{"result"},
		),
		ModuleActivations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_activations_total",
				Help:      "Module activation attempts by result",
			},
			[]string{"result"},
		),
		ModulesMounted: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "modules_mounted",
				Help:      "Number of currently mounted modules",
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// EventPublished records a bus publish.
func (c *Collector) EventPublished(name string, subscribers int) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(name).Inc()
}

// HandlerFailed records a failing event handler.
func (c *Collector) HandlerFailed(name string) {
	if c == nil {
		return
	}
	c.HandlerFailures.WithLabelValues(name).Inc()
}

// SlicesChanged records the current number of state namespaces.
func (c *Collector) SlicesChanged(count int) {
	if c == nil {
		return
	}
	c.StateSlices.Set(float64(count))
}

// Resolved records which source won a remote resolution.
func (c *Collector) Resolved(module, source string) {
	if c == nil {
		return
	}
	c.Resolutions.WithLabelValues(module, source).Inc()
}

// OverrideChanged records a persisted override mutation.
func (c *Collector) OverrideChanged(op string) {
	if c == nil {
		return
	}
	c.OverrideMutations.WithLabelValues(op).Inc()
}

// ContractValidated records a contract validation outcome.
func (c *Collector) ContractValidated(valid bool) {
	if c == nil {
		return
	}
	c.ContractValidations.WithLabelValues(resultLabel(valid)).Inc()
}

// ModuleActivated records an activation attempt and the mounted count after it.
func (c *Collector) ModuleActivated(result string, mounted int) {
	if c == nil {
		return
	}
	c.ModuleActivations.WithLabelValues(result).Inc()
	c.ModulesMounted.Set(float64(mounted))
}

// ModulesChanged records the mounted module count.
func (c *Collector) ModulesChanged(mounted int) {
	if c == nil {
		return
	}
	c.ModulesMounted.Set(float64(mounted))
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

func resultLabel(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}
