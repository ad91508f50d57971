package blit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gogpu/blit"

// Executor is the single worker that drives jobs through one accelerator.
//
// Jobs are processed strictly in dequeue order and only one job is ever
// running on the hardware. Every dequeued job is retired exactly once,
// with its outcome in Job.State.
type Executor struct {
	dev     Device
	src     JobSource
	binder  *Binder
	conf    *Configurer
	state   *EngineState
	timeout time.Duration
	metrics *Metrics
	tracer  trace.Tracer

	runMu sync.Mutex

	wake      chan struct{}
	quit      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewExecutor creates an executor for dev that binds through tr and takes
// jobs from src. It installs the engine's completion interrupt handler on
// dev.
func NewExecutor(dev Device, tr Translator, src JobSource, opts ...Option) *Executor {
	o := defaultExecutorOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.state == nil {
		o.state = NewEngineState()
	}

	binder := NewBinder(tr, o.metrics)
	e := &Executor{
		dev:     dev,
		src:     src,
		binder:  binder,
		conf:    NewConfigurer(dev, binder, o.metrics),
		state:   o.state,
		timeout: o.timeout,
		metrics: o.metrics,
		tracer:  o.tracer,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	registerDevice(e, dev)
	dev.SetInterruptHandler(func() { e.state.HandleInterrupt(dev) })
	return e
}

// State returns the engine state shared with the interrupt handler.
func (e *Executor) State() *EngineState {
	return e.state
}

// Run processes jobs until the source is empty or ctx is done. Concurrent
// calls are serialized.
func (e *Executor) Run(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		j, ok := e.src.Dequeue()
		if !ok {
			return nil
		}
		e.process(ctx, j)
	}
}

// Start launches the dedicated worker goroutine. The worker drains the
// source each time Kick is called, until Close or ctx is done.
func (e *Executor) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		Logger().Info("blit: executor started", slog.Duration("timeout", e.timeout))
		e.wg.Add(1)
		go e.worker(ctx)
	})
}

// Kick wakes the worker. It never blocks.
func (e *Executor) Kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Close stops the worker and waits for the job in progress to retire.
// The device no longer follows SetLogger afterwards.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
	e.wg.Wait()
	unregisterDevice(e)
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()
	defer Logger().Info("blit: executor stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		case <-e.wake:
			_ = e.Run(ctx)
		}
	}
}

// process drives one job from dequeue to retirement.
func (e *Executor) process(ctx context.Context, j *Job) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "blit.job", trace.WithAttributes(
		attribute.String("blit.job_id", j.ID.String()),
		attribute.String("blit.op", j.Params.Op.String()),
	))
	defer span.End()

	log := Logger().With(slog.String("job_id", j.ID.String()))
	j.State = StateBusy

	desc, bound, err := e.conf.Configure(ctx, j)
	if err != nil {
		j.State = StateError
		j.err = err
		log.Warn("blit: configuration failed", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.retire(j, start)
		return
	}

	j.State = e.execute(j, desc)
	span.SetAttributes(attribute.String("blit.state", j.State.String()))
	if j.err != nil {
		span.RecordError(j.err)
		span.SetStatus(codes.Error, j.err.Error())
	}

	e.binder.Unbind(bound)
	e.retire(j, start)
}

// execute kicks the hardware and waits for completion, recovering the
// engine on timeout. It returns the job's terminal state.
func (e *Executor) execute(j *Job, desc *Descriptor) State {
	done, err := e.state.begin()
	if err != nil {
		j.err = err
		return StateError
	}
	if err := e.dev.Run(); err != nil {
		e.state.forceIdle(false)
		j.err = &ConfigError{Kind: HardwareFault, Err: err}
		return StateError
	}

	if err := e.state.wait(done, e.timeout); err != nil {
		j.err = err
		e.recover(j, desc)
		return StateTimedOut
	}
	return StateCompleted
}

// recover brings the engine back to a known state after a timeout. The
// hardware is always reset: its internal state is not trusted once a
// completion has been missed.
func (e *Executor) recover(j *Job, desc *Descriptor) {
	log := Logger().With(slog.String("job_id", j.ID.String()))
	e.metrics.RecordTimeout()

	e.dev.DisableInterrupt()
	if e.dev.IsBlitDone() {
		e.metrics.RecordMissedInterrupt()
		log.Warn("blit: blit finished but completion interrupt was missed",
			slog.Duration("timeout", e.timeout))
	} else {
		log.Warn("blit: hardware did not complete", slog.Duration("timeout", e.timeout),
			slog.String("op", desc.Op.String()))
	}
	log.Debug("blit: device state at timeout", slog.String("dump", e.dev.Dump()))

	e.dev.Stop()
	if err := e.dev.Reset(); err != nil {
		log.Error("blit: hardware reset failed", slog.String("error", err.Error()))
	}
	e.state.forceIdle(true)
	e.metrics.RecordReset()
	log.Info("blit: hardware reset after timeout")
}

func (e *Executor) retire(j *Job, start time.Time) {
	elapsed := time.Since(start)
	e.metrics.RecordJob(j.State, elapsed)
	Logger().Debug("blit: job retired",
		slog.String("job_id", j.ID.String()),
		slog.String("state", j.State.String()),
		slog.Duration("elapsed", elapsed),
	)
	e.src.Retire(j)
}
