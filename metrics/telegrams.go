package metrics

import (
	"github.com/Station-Manager/wmbus/telegram"
	"github.com/prometheus/client_golang/prometheus"
)

// TelegramCounter counts telegrams and payload bytes per source device.
type TelegramCounter struct {
	telegrams *prometheus.CounterVec
	bytes     *prometheus.CounterVec
}

var (
	_ telegram.Handler     = (*TelegramCounter)(nil)
	_ prometheus.Collector = (*TelegramCounter)(nil)
)

// NewTelegramCounter returns a counter with no sources seen yet.
func NewTelegramCounter() *TelegramCounter {
	return &TelegramCounter{
		telegrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "received_total",
			Help:      "Telegrams decoded.",
		}, []string{"source"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "received_bytes_total",
			Help:      "Telegram payload bytes decoded.",
		}, []string{"source"}),
	}
}

// HandleTelegram counts t and its bytes under its source.
func (c *TelegramCounter) HandleTelegram(t telegram.Telegram) {
	c.telegrams.WithLabelValues(t.Source).Inc()
	c.bytes.WithLabelValues(t.Source).Add(float64(len(t.Payload)))
}

func (c *TelegramCounter) Describe(ch chan<- *prometheus.Desc) {
	c.telegrams.Describe(ch)
	c.bytes.Describe(ch)
}

func (c *TelegramCounter) Collect(ch chan<- prometheus.Metric) {
	c.telegrams.Collect(ch)
	c.bytes.Collect(ch)
}
