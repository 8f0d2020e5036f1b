package proxy

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/cellfuzz/txpoolfuzz/libs/log"
	"github.com/cellfuzz/txpoolfuzz/mempool"
	"github.com/cellfuzz/txpoolfuzz/types"
)

// CellViewer is implemented by engines that expose their view of the live
// cell set.
type CellViewer = mempool.CellViewer

// PoolAdapter is the harness' only way to talk to the engine. Every call runs
// on its own goroutine with a bounded timeout, detached from the caller's
// cancellation so an in-flight submission always finishes or times out.
// Panics and timeouts are turned into engine faults; nothing the engine does
// escapes a single submission.
//
// An engine may decide to admit a transaction just before its deadline and
// report it just after. Once the deadline fires the adapter keeps waiting up
// to the grace period, and an answer arriving within it is the outcome. Only
// an engine still silent after the grace period is a timeout.
type PoolAdapter struct {
	engine  mempool.Engine
	timeout time.Duration
	grace   time.Duration

	logger  log.Logger
	metrics *Metrics
}

// Option sets an optional parameter on the adapter.
type Option func(*PoolAdapter)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(a *PoolAdapter) { a.metrics = metrics }
}

// WithGracePeriod sets how long an answer is still waited for once the
// deadline fired.
func WithGracePeriod(grace time.Duration) Option {
	return func(a *PoolAdapter) { a.grace = grace }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(a *PoolAdapter) { a.logger = logger }
}

// DefaultGracePeriod is the grace period of a new adapter.
const DefaultGracePeriod = time.Second

// NewPoolAdapter wraps engine. A non-positive timeout disables the deadline.
func NewPoolAdapter(engine mempool.Engine, timeout time.Duration, options ...Option) *PoolAdapter {
	a := &PoolAdapter{
		engine:  engine,
		timeout: timeout,
		grace:   DefaultGracePeriod,
		logger:  log.NewNopLogger(),
		metrics: NopMetrics(),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// CellViewer returns the engine's view of the live set, if it exposes one.
func (a *PoolAdapter) CellViewer() (CellViewer, bool) {
	v, ok := a.engine.(CellViewer)
	return v, ok
}

// Submit hands tx to the engine and classifies the answer. It never returns
// an error: every failure mode of the engine is an Outcome.
func (a *PoolAdapter) Submit(ctx context.Context, tx *types.Transaction) types.Outcome {
	defer addTimeSample(a.metrics.MethodTimingSeconds.With("method", "check_tx"))()

	err := a.call(ctx, "check_tx", func(ctx context.Context) error {
		return a.engine.CheckTx(ctx, tx)
	})
	outcome := classify(err)
	a.metrics.Outcomes.With("outcome", outcome.Label()).Add(1)

	if outcome.Kind == types.OutcomeEngineFault {
		a.logger.Error("Engine fault", "tx", log.NewLazyHash[types.Hash](tx), "fault", outcome.Fault, "err", err)
		var p ErrEnginePanic
		if errors.As(err, &p) {
			a.logger.Debug("Engine panic stack", "stack", string(p.Stack))
		}
	}
	return outcome
}

// Commit notifies the engine of a sealed block. Panics and timeouts are
// returned as ErrEnginePanic and ErrEngineTimeout.
func (a *PoolAdapter) Commit(ctx context.Context, header types.Header) error {
	defer addTimeSample(a.metrics.MethodTimingSeconds.With("method", "update"))()

	return a.call(ctx, "update", func(ctx context.Context) error {
		return a.engine.Update(ctx, header)
	})
}

// PoolSize returns the number of transactions pending in the engine.
func (a *PoolAdapter) PoolSize() int {
	return a.engine.Size()
}

// call runs fn in isolation. The result channel is buffered so a call that
// outlives its deadline can still finish and exit.
func (a *PoolAdapter) call(ctx context.Context, method string, fn func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ErrEnginePanic{Method: method, Value: r, Stack: debug.Stack()}
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return timedOut(ctx, method, err)
	case <-ctx.Done():
	}

	// the engine may have committed to an answer as the deadline fired
	grace := time.NewTimer(a.grace)
	defer grace.Stop()
	select {
	case err := <-done:
		return timedOut(ctx, method, err)
	case <-grace.C:
		a.logger.Error("Engine did not answer within its grace period", "method", method, "grace", a.grace)
		return ErrEngineTimeout{Method: method, Err: ctx.Err()}
	}
}

// timedOut wraps err in ErrEngineTimeout if the engine gave up because of
// the deadline.
func timedOut(ctx context.Context, method string, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return ErrEngineTimeout{Method: method, Err: err}
	}
	return err
}

// classify maps an engine answer onto the outcome vocabulary.
func classify(err error) types.Outcome {
	if err == nil {
		return types.Accepted()
	}

	var rej *mempool.ErrRejected
	if errors.As(err, &rej) {
		reason := rej.Reason
		if !isKnownReason(reason) {
			reason = types.ReasonUnclassified
		}
		return types.Rejected(reason, err.Error())
	}

	var (
		p  ErrEnginePanic
		to ErrEngineTimeout
	)
	switch {
	case errors.As(err, &p):
		return types.EngineFault(types.FaultPanic, err.Error())
	case errors.As(err, &to), errors.Is(err, context.DeadlineExceeded):
		return types.EngineFault(types.FaultTimeout, err.Error())
	case errors.Is(err, mempool.ErrResourceLimit):
		return types.EngineFault(types.FaultResourceLimit, err.Error())
	default:
		return types.EngineFault(types.FaultUnexpected, err.Error())
	}
}

func isKnownReason(r types.RejectReason) bool {
	return r > types.ReasonNone && r <= types.ReasonPoolFull
}

func addTimeSample(m metrics.Histogram) func() {
	start := time.Now()
	return func() { m.Observe(time.Since(start).Seconds()) }
}
