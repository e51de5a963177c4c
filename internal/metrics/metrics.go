// Package metrics exposes prometheus instruments for the chat core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds the instruments used across the server. Each Set owns its own
// registry so tests can build isolated instances.
type Set struct {
	MessagesAppended prometheus.Counter
	EventsPublished  *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	Subscribers      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Set with its own registry, including the standard Go and
// process collectors.
func New() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	s := &Set{
		MessagesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Messages durably appended to the store.",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_published_total",
			Help: "Events published to the broadcast channel, by kind.",
		}, []string{"kind"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_events_dropped_total",
			Help: "Events dropped because a subscriber's send buffer was full.",
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_active_subscribers",
			Help: "Currently connected realtime subscribers.",
		}),
		registry: reg,
	}

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return s
}

// Handler returns the /metrics HTTP handler for this Set's registry.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
