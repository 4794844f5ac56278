package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

// Drop reasons.
const (
	DropNoCounterpart = "no_counterpart"
	DropNoRoom        = "no_room"
	DropSlowConsumer  = "slow_consumer"
)

// Metrics is owned by whoever builds the server; nothing registers globally.
type Metrics struct {
	RoomsActive    prometheus.Gauge
	SessionsActive prometheus.Gauge
	Joins          *prometheus.CounterVec
	Relayed        *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec
	RoomsReaped    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms currently present in the registry",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Connected websocket sessions",
		}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Join requests by outcome",
		}, []string{"result"}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_total",
			Help:      "Gameplay events forwarded to the other occupant",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Outbound events that were not delivered",
		}, []string{"reason"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Errors reported back to the offending sender",
		}, []string{"code"}),
		RoomsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_reaped_total",
			Help:      "Rooms closed by the idle reaper",
		}),
	}

	reg.MustRegister(
		m.RoomsActive,
		m.SessionsActive,
		m.Joins,
		m.Relayed,
		m.Dropped,
		m.ProtocolErrors,
		m.RoomsReaped,
	)
	return m
}

// Discard returns metrics bound to a throwaway registry.
func Discard() *Metrics { return New(prometheus.NewRegistry()) }
