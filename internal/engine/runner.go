package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plugflow/plugflow/internal/engine/config"
	errspkg "github.com/plugflow/plugflow/internal/engine/errors"
	"github.com/plugflow/plugflow/internal/engine/ids"
	"github.com/plugflow/plugflow/internal/engine/jsoncodec"
	"github.com/plugflow/plugflow/internal/engine/logging"
	"github.com/plugflow/plugflow/internal/engine/metaid"
	"github.com/plugflow/plugflow/internal/engine/metrics"
)

// Options carries the optional collaborators for NewRunner. Leave fields nil
// to skip the related behaviour.
type Options struct {
	// Bank supplies the element specs. A nil bank starts empty, so every
	// task would fail lookup; callers normally pass a populated bank.
	Bank *Bank
	// Plugins are statically linked plugin entry points registered into the
	// bank before the graph is built.
	Plugins []PluginEntry
	// Registerer enables engine metrics when non-nil.
	Registerer prometheus.Registerer
}

// Runner owns one pipeline execution: the element graph, the port channels
// wiring it, the metadata registry shared by its tasks, and the driving
// goroutines. It is built fully validated; Run starts all tasks and blocks
// until every one terminates.
type Runner struct {
	conf *config.Config
	log  logging.Logger

	bank     *Bank
	registry *metaid.Registry
	metrics  *metrics.Engine
	runID    string

	closing   atomic.Bool
	closeOnce sync.Once

	tasks      []*task
	finalizers []func() error

	ran atomic.Bool
}

// NewRunner validates the configuration, registers plugins, instantiates
// every element, checks port wiring compatibility, and binds the port
// channels. All graph-construction errors surface here, before any task
// starts.
func NewRunner(conf *config.Config, log logging.Logger, opts Options) (*Runner, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	bank := opts.Bank
	if bank == nil {
		bank = NewBank()
	}
	for _, entry := range opts.Plugins {
		if err := bank.RegisterPlugin(entry); err != nil {
			return nil, err
		}
	}

	var engineMetrics *metrics.Engine
	if opts.Registerer != nil {
		engineMetrics = metrics.NewEngine(opts.Registerer)
		if err := engineMetrics.Register(); err != nil {
			return nil, err
		}
	}

	r := &Runner{
		conf:     conf,
		bank:     bank,
		registry: metaid.NewRegistry(),
		metrics:  engineMetrics,
		runID:    ids.CreateULID(),
	}
	r.log = log.With(logging.LogFields{"run_id": r.runID})

	tc, err := newTypeChecker(bank, conf.Tasks)
	if err != nil {
		return nil, err
	}
	if err := tc.validateWiring(bank, conf.Tasks); err != nil {
		return nil, err
	}

	if err := r.buildTasks(tc); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) buildTasks(tc *typeChecker) error {
	capacity := r.conf.ChannelCapacity()

	// One inlet per wired receive port, counting its writers so the channel
	// closes exactly when the last upstream sender releases it.
	type wiring struct {
		spec    Spec
		elem    Element
		inlets  []*inlet
		sender  *Sender
		numEdge []int
	}
	byID := make(map[TaskID]*wiring, len(r.conf.Tasks))

	for _, taskConf := range r.conf.Tasks {
		spec, ok := r.bank.Lookup(taskConf.Element)
		if !ok {
			return fmt.Errorf("plugflow: unknown element %q (task %d)", taskConf.Element, taskConf.ID)
		}

		confBytes, err := jsoncodec.MarshalConf(taskConf.Conf)
		if err != nil {
			return fmt.Errorf("plugflow: task %d: %w", taskConf.ID, err)
		}
		elem, err := spec.New(confBytes)
		if err != nil {
			return fmt.Errorf("plugflow: building element %q (task %d): %w", taskConf.Element, taskConf.ID, err)
		}

		w := &wiring{
			spec:    spec,
			elem:    elem,
			sender:  newSender(spec.SendPorts),
			numEdge: make([]int, int(spec.RecvPorts)),
		}
		for port, origins := range taskConf.From {
			w.numEdge[port] = len(origins)
		}
		byID[TaskID(taskConf.ID)] = w
	}

	for _, taskConf := range r.conf.Tasks {
		w := byID[TaskID(taskConf.ID)]
		w.inlets = make([]*inlet, int(w.spec.RecvPorts))
		for port := range w.inlets {
			w.inlets[port] = newInlet(capacity, w.numEdge[port])
		}
		for port, origins := range taskConf.From {
			for _, origin := range origins {
				byID[TaskID(origin.ID)].sender.bind(origin.Port, w.inlets[port])
			}
		}
	}

	for _, taskConf := range r.conf.Tasks {
		w := byID[TaskID(taskConf.ID)]
		id := TaskID(taskConf.ID)

		pctx := newContext(id, w.spec.Name, w.spec.SendPorts, r.registry, tc, &r.closing, r.RequestClose)
		t := &task{
			id:       id,
			element:  w.spec.Name,
			elem:     w.elem,
			sender:   w.sender,
			receiver: newMeteredReceiver(w.inlets, r.metrics, w.spec.Name),
			pctx:     pctx,
			log:      logging.ForModule(r.log, "core", "task"),
			metrics:  r.metrics,
		}
		r.tasks = append(r.tasks, t)

		if fin, ok := w.elem.(Finalizable); ok {
			if f := fin.Finalizer(); f != nil {
				r.finalizers = append(r.finalizers, f)
			}
		}
	}
	return nil
}

// Run starts one goroutine per element task and blocks until every task has
// terminated, then runs the collected finalizers. The returned error joins
// every element-signalled error; nil means every element closed cleanly.
// Cancelling ctx requests a cooperative close.
func (r *Runner) Run(ctx context.Context) error {
	if r.ran.Swap(true) {
		return errspkg.ErrRunnerClosed
	}

	r.log.Info("starting pipeline", logging.LogFields{"tasks": len(r.tasks)})

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.RequestClose()
		case <-watchDone:
		}
	}()

	var wg sync.WaitGroup
	errs := make([]error, len(r.tasks))
	for i, t := range r.tasks {
		wg.Add(1)
		go func(i int, t *task) {
			defer wg.Done()
			r.log.Debug("spawning task", logging.LogFields{"task_id": t.id, "element": t.element})
			errs[i] = t.run(ctx, r.RequestClose)
		}(i, t)
	}
	wg.Wait()
	close(watchDone)

	r.runFinalizers()

	err := errors.Join(errs...)
	if err != nil {
		r.log.Error("pipeline finished with errors", err, nil)
		return err
	}
	r.log.Info("pipeline finished", nil)
	return nil
}

// RequestClose flips the cooperative closing flag. Tasks observe it between
// steps; there is no forced preemption.
func (r *Runner) RequestClose() {
	r.closeOnce.Do(func() {
		r.closing.Store(true)
		r.log.Info("pipeline close requested", nil)
	})
}

// Closing reports whether a close has been requested.
func (r *Runner) Closing() bool {
	return r.closing.Load()
}

// RunID returns the ULID tagging this execution's logs and metrics.
func (r *Runner) RunID() string {
	return r.runID
}

// Elements iterates the registered element specs in name order until fn
// returns false.
func (r *Runner) Elements(fn func(Spec) bool) {
	r.bank.Each(fn)
}

func (r *Runner) runFinalizers() {
	for _, fin := range r.finalizers {
		if err := fin(); err != nil {
			r.log.Error("finalizer failed", err, nil)
		}
	}
	r.finalizers = nil
}
