// Package metrics exposes session and request-gate counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes
const (
	RefreshSuccess    = "success"
	RefreshFailure    = "failure"
	RefreshSuperseded = "superseded"
)

// Recorder is what the session manager and request gate report into
type Recorder interface {
	RefreshCompleted(outcome string)
	SessionEnded(reason string)
	GateRequest(result string)
	GateRetry()
}

// Nop discards everything
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RefreshCompleted(string) {}
func (Nop) SessionEnded(string)     {}
func (Nop) GateRequest(string)      {}
func (Nop) GateRetry()              {}

// Prometheus implements Recorder with counters registered on a registerer
type Prometheus struct {
	refreshes *prometheus.CounterVec
	logouts   *prometheus.CounterVec
	requests  *prometheus.CounterVec
	retries   prometheus.Counter
}

var _ Recorder = (*Prometheus)(nil)

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freight",
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Refresh round-trips by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freight",
			Subsystem: "session",
			Name:      "logout_total",
			Help:      "Sessions ended, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freight",
			Subsystem: "gate",
			Name:      "requests_total",
			Help:      "Protected requests by final state.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freight",
			Subsystem: "gate",
			Name:      "retries_total",
			Help:      "Requests replayed after a forced refresh.",
		}),
	}
	for _, c := range []prometheus.Collector{p.refreshes, p.logouts, p.requests, p.retries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RefreshCompleted(outcome string) {
	p.refreshes.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) SessionEnded(reason string) {
	p.logouts.WithLabelValues(reason).Inc()
}

func (p *Prometheus) GateRequest(result string) {
	p.requests.WithLabelValues(result).Inc()
}

func (p *Prometheus) GateRetry() {
	p.retries.Inc()
}
