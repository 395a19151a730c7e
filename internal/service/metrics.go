package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"cardapi/internal/model"
)

// Metrics holds the delivery domain counters. A nil *Metrics is valid and
// records nothing, so tests don't need a registry.
type Metrics struct {
	deliveries *prometheus.CounterVec
	downloads  *prometheus.CounterVec
}

// NewMetrics registers the delivery counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "card_deliveries_total",
				Help: "Total number of card delivery attempts by channel and final status.",
			},
			[]string{"channel", "status"},
		),
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "card_downloads_total",
				Help: "Total number of token redemption attempts by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if err := reg.Register(m.deliveries); err != nil {
		return nil, err
	}
	if err := reg.Register(m.downloads); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observeDelivery(channel model.DeliveryChannel, status model.DeliveryStatus) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(channel), string(status)).Inc()
}

func (m *Metrics) observeDownload(outcome string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(outcome).Inc()
}
