// Package metrics exports capture loop activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/camkeep/internal/events"
)

// States reported by the state gauge, in loop order.
var States = []string{"initializing", "awaiting_device", "opening", "streaming", "reconnecting", "terminated"}

var (
	captureState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camkeep",
		Subsystem: "capture",
		Name:      "state",
		Help:      "1 for the current capture loop state, 0 otherwise",
	}, []string{"state"})

	openAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camkeep",
		Subsystem: "camera",
		Name:      "open_attempts_total",
		Help:      "Open attempts by result code, ok on success",
	}, []string{"code"})

	backoffDelay = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camkeep",
		Subsystem: "camera",
		Name:      "backoff_delay_seconds",
		Help:      "Wait that preceded the latest open attempt",
	})

	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camkeep",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames forwarded to the sink",
	})

	frameBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camkeep",
		Subsystem: "capture",
		Name:      "frame_bytes_total",
		Help:      "Encoded bytes forwarded to the sink",
	})

	readFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camkeep",
		Subsystem: "health",
		Name:      "consecutive_failures",
		Help:      "Consecutive failed frame reads",
	})

	healthTrips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camkeep",
		Subsystem: "health",
		Name:      "trips_total",
		Help:      "Times the read failure threshold was reached",
	})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camkeep",
		Subsystem: "capture",
		Name:      "reconnects_total",
		Help:      "Reconnect attempts by result",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetState marks state as the current one.
func SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		captureState.WithLabelValues(s).Set(v)
	}
}

// Subscribe updates metrics from bus events until the returned function is called.
func Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.StateChangedEvent) {
			SetState(e.To)
		}),
		bus.Subscribe(func(e events.OpenAttemptEvent) {
			code := e.Code
			if e.Succeeded() {
				code = "ok"
			} else if code == "" {
				code = "other"
			}
			openAttempts.WithLabelValues(code).Inc()
			backoffDelay.Set(e.DelaySec)
		}),
		bus.Subscribe(func(e events.FrameCapturedEvent) {
			framesCaptured.Inc()
			frameBytes.Add(float64(e.Bytes))
			readFailures.Set(0)
		}),
		bus.Subscribe(func(e events.HealthSignalEvent) {
			if e.Signal == "tripped" {
				healthTrips.Inc()
				readFailures.Set(0)
				return
			}
			readFailures.Set(float64(e.Failures))
		}),
		bus.Subscribe(func(e events.ReconnectEvent) {
			result := "ok"
			if !e.Success {
				result = "failed"
			}
			reconnects.WithLabelValues(result).Inc()
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
