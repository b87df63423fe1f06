package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/primus-go/internal/connection"
)

// Name is the plugin name.
const Name = "metrics"

const defaultNamespace = "primus"

// Plugin records a connection's events. Attach registers its collectors, so
// one Plugin serves one connection.
type Plugin struct {
	reg       prometheus.Registerer
	namespace string

	events     *prometheus.CounterVec
	errors     *prometheus.CounterVec
	retryDelay prometheus.Histogram
	discarded  prometheus.Counter
}

// New creates the plugin. Collectors are registered on reg when attached.
func New(reg prometheus.Registerer, namespace string) *Plugin {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Plugin{
		reg:       reg,
		namespace: namespace,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Connection events emitted, by event name.",
		}, []string{"event"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Connection errors, by kind.",
		}, []string{"kind"}),
		retryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Delay before each scheduled reconnect.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_messages_total",
			Help:      "Buffered messages dropped when the connection ended.",
		}),
	}
}

func (p *Plugin) Name() string {
	return Name
}

// Attach registers the collectors and subscribes to c's public events.
func (p *Plugin) Attach(c *connection.Conn) error {
	readyState := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "ready_state",
		Help:      "Ready state: 0 closed, 1 connecting, 2 open, 3 closing.",
	}, func() float64 { return float64(c.ReadyState()) })
	online := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "online",
		Help:      "1 if the network is reachable.",
	}, func() float64 { return boolToFloat(c.Online()) })
	buffered := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "buffered_messages",
		Help:      "Messages waiting in the outgoing buffer.",
	}, func() float64 { return float64(c.Buffered()) })

	collectors := []prometheus.Collector{
		p.events, p.errors, p.retryDelay, p.discarded,
		readyState, online, buffered,
	}
	for _, col := range collectors {
		if err := p.reg.Register(col); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	for _, name := range connection.PublicEvents {
		name := name
		c.On(name, func(payload any) { p.observe(name, payload) })
	}
	return nil
}

func (p *Plugin) observe(event string, payload any) {
	p.events.WithLabelValues(event).Inc()

	switch event {
	case connection.EventError:
		if err, ok := payload.(error); ok {
			p.errors.WithLabelValues(ErrorKind(err)).Inc()
		}
	case connection.EventReconnecting:
		if ev, ok := payload.(connection.ReconnectingEvent); ok {
			p.retryDelay.Observe(ev.Delay.Seconds())
		}
	case connection.EventEnd:
		if ev, ok := payload.(connection.EndEvent); ok && ev.Discarded > 0 {
			p.discarded.Add(float64(ev.Discarded))
		}
	}
}

// ErrorKind maps a connection error to a low-cardinality label value.
func ErrorKind(err error) string {
	var pv *connection.ProtocolViolationError
	switch {
	case errors.As(err, &pv):
		return "protocol"
	case errors.Is(err, connection.ErrDecodeFailure):
		return "decode"
	case errors.Is(err, connection.ErrEncodeFailure):
		return "encode"
	case errors.Is(err, connection.ErrHandshakeFailed):
		return "handshake"
	case errors.Is(err, connection.ErrHeartbeatTimeout):
		return "heartbeat"
	case errors.Is(err, connection.ErrNetworkUnavailable):
		return "network"
	case errors.Is(err, connection.ErrConnectionLost):
		return "lost"
	case errors.Is(err, connection.ErrCancelled):
		return "cancelled"
	}
	return "other"
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
