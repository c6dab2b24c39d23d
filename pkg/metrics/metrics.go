package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"serialscope/pkg/protocol"
)

var (
	registerOnce sync.Once

	bytesIn = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "serialscope",
			Subsystem: "parser",
			Name:      "bytes_total",
			Help:      "Bytes handed to the protocol parser.",
		},
	)
	records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialscope",
			Subsystem: "parser",
			Name:      "records_total",
			Help:      "Parsed records by kind.",
		},
		[]string{"kind"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialscope",
			Subsystem: "parser",
			Name:      "messages_total",
			Help:      "Parser and device messages by level.",
		},
		[]string{"level"},
	)
	samples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialscope",
			Subsystem: "scope",
			Name:      "samples_total",
			Help:      "Samples stored by channel.",
		},
		[]string{"channel"},
	)
	frames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "serialscope",
			Subsystem: "scope",
			Name:      "frames_total",
			Help:      "Refresh frames published.",
		},
	)
	linkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialscope",
			Subsystem: "link",
			Name:      "errors_total",
			Help:      "Transport errors by source.",
		},
		[]string{"source"},
	)
	paused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "serialscope",
			Subsystem: "scope",
			Name:      "paused",
			Help:      "1 while ingestion is paused.",
		},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(bytesIn, records, messages, samples, frames, linkErrors, paused)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func RecordBytes(n int) {
	Register()
	bytesIn.Add(float64(n))
}

func RecordEvent(kind protocol.EventKind) {
	Register()
	records.WithLabelValues(kind.String()).Inc()
}

func RecordMessage(level protocol.MessageLevel) {
	Register()
	messages.WithLabelValues(level.String()).Inc()
}

func RecordSamples(channel string, n int) {
	Register()
	samples.WithLabelValues(channel).Add(float64(n))
}

func RecordFrame() {
	Register()
	frames.Inc()
}

func RecordLinkError(source string) {
	Register()
	linkErrors.WithLabelValues(source).Inc()
}

func SetPaused(p bool) {
	Register()
	if p {
		paused.Set(1)
		return
	}
	paused.Set(0)
}
