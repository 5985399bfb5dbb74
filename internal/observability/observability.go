package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "midihub_midi_events_forwarded_total",
			Help: "MIDI events echoed to output ports.",
		},
	)
	ReadErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "midihub_midi_read_errors_total",
			Help: "Failed reads across all input ports.",
		},
	)
	CommandsTranslated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "midihub_commands_translated_total",
			Help: "Pad presses translated into playback commands.",
		},
	)
	ChannelMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "midihub_channel_messages_total",
			Help: "Command channel messages by delivery result.",
		},
		[]string{"result"},
	)
	Clients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "midihub_channel_clients",
			Help: "Currently connected playback clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsForwarded, ReadErrors, CommandsTranslated, ChannelMessages, Clients)
}

func Handler() http.Handler { return promhttp.Handler() }
