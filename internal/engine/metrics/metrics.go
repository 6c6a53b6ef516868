// Package metrics exposes Prometheus collectors for the pipeline engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine tracks per-element message flow for one runner.
type Engine struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	received      *prometheus.CounterVec
	emitted       *prometheus.CounterVec
	errors        *prometheus.CounterVec
	tasksRunning  prometheus.Gauge
	stepsTotal    *prometheus.CounterVec
	stepLatencies *prometheus.HistogramVec
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plugflow",
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewEngine creates the engine collectors. A nil registerer falls back to the
// Prometheus default.
func NewEngine(registerer prometheus.Registerer) *Engine {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Engine{
		registerer: registerer,
		received:   newCounterVec("messages_received_total", "Messages received by an element, by receive port", []string{"element", "port"}),
		emitted:    newCounterVec("messages_emitted_total", "Messages emitted by an element, by send port", []string{"element", "port"}),
		errors:     newCounterVec("element_errors_total", "Unrecoverable errors signalled by elements", []string{"element"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "plugflow",
			Subsystem: "engine",
			Name:      "tasks_running",
			Help:      "Number of element tasks currently running",
		}),
		stepsTotal: newCounterVec("steps_total", "Step invocations per element", []string{"element"}),
		stepLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "plugflow",
				Subsystem: "engine",
				Name:      "step_duration_seconds",
				Help:      "Wall time of one element step invocation",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
			},
			[]string{"element"},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (e *Engine) Register() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		e.received,
		e.emitted,
		e.errors,
		e.tasksRunning,
		e.stepsTotal,
		e.stepLatencies,
	}
	for _, c := range collectors {
		if err := e.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	e.registered = true
	return nil
}

// RecordReceived counts one message received on a port.
func (e *Engine) RecordReceived(element, port string) {
	if e == nil {
		return
	}
	e.received.WithLabelValues(element, port).Inc()
}

// RecordEmitted counts one message routed out of a port.
func (e *Engine) RecordEmitted(element, port string) {
	if e == nil {
		return
	}
	e.emitted.WithLabelValues(element, port).Inc()
}

// RecordError counts one element-signalled error.
func (e *Engine) RecordError(element string) {
	if e == nil {
		return
	}
	e.errors.WithLabelValues(element).Inc()
}

// TaskStarted and TaskStopped maintain the running tasks gauge.
func (e *Engine) TaskStarted() {
	if e == nil {
		return
	}
	e.tasksRunning.Inc()
}

func (e *Engine) TaskStopped() {
	if e == nil {
		return
	}
	e.tasksRunning.Dec()
}

// ObserveStep records one step invocation and its duration in seconds.
func (e *Engine) ObserveStep(element string, seconds float64) {
	if e == nil {
		return
	}
	e.stepsTotal.WithLabelValues(element).Inc()
	e.stepLatencies.WithLabelValues(element).Observe(seconds)
}
