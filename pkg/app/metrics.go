package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the prometheus collectors of the decoder.
type metrics struct {
	registry *prometheus.Registry

	bits          prometheus.Counter // demodulated pwm bits
	bytes         prometheus.Counter // assembled bytes
	frames        prometheus.Counter // complete code words
	resyncs       prometheus.Counter // discarded partial frames
	baseFrequency prometheus.Gauge   // average pwm base frequency of the last frame
}

func newMetrics() *metrics {
	r := prometheus.NewRegistry()
	f := promauto.With(r)

	return &metrics{
		registry: r,
		bits: f.NewCounter(prometheus.CounterOpts{
			Name: "keeloq_bits_total",
			Help: "Number of demodulated PWM bits",
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Name: "keeloq_bytes_total",
			Help: "Number of assembled KeeLoq bytes",
		}),
		frames: f.NewCounter(prometheus.CounterOpts{
			Name: "keeloq_frames_total",
			Help: "Number of decoded KeeLoq code words",
		}),
		resyncs: f.NewCounter(prometheus.CounterOpts{
			Name: "keeloq_resyncs_total",
			Help: "Number of partial frames discarded while waiting for a header",
		}),
		baseFrequency: f.NewGauge(prometheus.GaugeOpts{
			Name: "keeloq_base_frequency_hz",
			Help: "Average PWM base frequency of the last decoded code word in Hz",
		}),
	}
}

func (m *metrics) resync(int) {
	m.resyncs.Inc()
}

// HandleMetrics exposes the decoder metrics in the prometheus text format.
func (app *App) HandleMetrics() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(app.metrics.registry, promhttp.HandlerOpts{}))
}
