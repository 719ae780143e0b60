package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters served on the health endpoint.
type Metrics struct {
	registry *prometheus.Registry

	PollCycles      prometheus.Counter
	PollErrors      prometheus.Counter
	AlertsSent      prometheus.Counter
	Confirms        prometheus.Counter
	PreservedAlerts prometheus.Counter
	ChannelsCreated prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "channelwatch_poll_cycles_total",
			Help: "Completed poll cycles.",
		}),
		PollErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "channelwatch_poll_errors_total",
			Help: "Per-channel poll steps that failed.",
		}),
		AlertsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "channelwatch_alerts_sent_total",
			Help: "Inactivity alerts sent.",
		}),
		Confirms: factory.NewCounter(prometheus.CounterOpts{
			Name: "channelwatch_confirms_total",
			Help: "Alerts confirmed by moderators.",
		}),
		PreservedAlerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "channelwatch_preserved_alerts_total",
			Help: "Alerts preserved on monitor removal.",
		}),
		ChannelsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "channelwatch_channels_created_total",
			Help: "Channels created by mass create.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
