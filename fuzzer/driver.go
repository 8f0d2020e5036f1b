// Package fuzzer drives the fuzz loop: it owns the chain state, the seed
// model and the store, feeds generated candidates to the engine through the
// pool adapter, records every outcome and persists snapshots.
package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/generator"
	"github.com/cellfuzz/txpoolfuzz/invariant"
	"github.com/cellfuzz/txpoolfuzz/libs/log"
	tpfos "github.com/cellfuzz/txpoolfuzz/libs/os"
	"github.com/cellfuzz/txpoolfuzz/mempool"
	"github.com/cellfuzz/txpoolfuzz/proxy"
	"github.com/cellfuzz/txpoolfuzz/seed"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/store"
	"github.com/cellfuzz/txpoolfuzz/types"
)

const readHeaderTimeout = 10 * time.Second

// State is the lifecycle state of a Driver.
type State uint32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// EngineProvider builds the engine a run submits to. The engine must start
// from the same view of the chain as cs.
type EngineProvider func(cfg config.PoolConfig, cs *state.ChainState, logger log.Logger, metrics *mempool.Metrics) (mempool.Engine, error)

// DefaultEngineProvider returns the in-process reference pool.
func DefaultEngineProvider(cfg config.PoolConfig, cs *state.ChainState, logger log.Logger, metrics *mempool.Metrics) (mempool.Engine, error) {
	return mempool.NewTxPool(cfg, cs, mempool.WithLogger(logger), mempool.WithMetrics(metrics)), nil
}

// Stats counts what a run did so far.
type Stats struct {
	Iterations uint64
	Submitted  uint64
	Accepted   uint64
	Rejected   uint64
	Faults     uint64
	Findings   uint64
	Warnings   uint64
}

// Driver is the fuzz loop over one data directory. Between iterations its
// chain state, seed model and store agree with each other; the engine is
// rebuilt from the chain state whenever a driver is loaded.
type Driver struct {
	cfg     *config.RunConfig
	dataDir string
	runID   string

	logger          log.Logger
	metrics         *Metrics
	dbProvider      config.DBProvider
	engineProvider  EngineProvider
	metricsProvider MetricsProvider

	store   *store.Store
	cs      *state.ChainState
	model   *seed.Model
	plan    *generator.Plan
	adapter *proxy.PoolAdapter
	checker *invariant.Checker

	state atomic.Uint32
	stats Stats
}

// Option sets an optional parameter on the Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithDBProvider sets the provider of the store's database.
func WithDBProvider(p config.DBProvider) Option {
	return func(d *Driver) { d.dbProvider = p }
}

// WithEngineProvider replaces the reference pool by another engine.
func WithEngineProvider(p EngineProvider) Option {
	return func(d *Driver) { d.engineProvider = p }
}

// WithMetricsProvider sets the provider of every component's metrics.
func WithMetricsProvider(p MetricsProvider) Option {
	return func(d *Driver) { d.metricsProvider = p }
}

// Load opens an initialized data directory and returns a Ready driver
// positioned at its last snapshot. Outcomes recorded after that snapshot
// are archived as replayed: the iterations that produced them will run
// again.
func Load(cfg *config.RunConfig, dataDir string, options ...Option) (*Driver, error) {
	d := &Driver{
		cfg:             cfg,
		dataDir:         dataDir,
		runID:           uuid.NewString(),
		logger:          log.NewNopLogger(),
		dbProvider:      config.DefaultDBProvider,
		engineProvider:  DefaultEngineProvider,
		metricsProvider: DefaultMetricsProvider(cfg.Instrumentation),
	}
	for _, option := range options {
		option(d)
	}
	d.setState(StateInitializing)

	if err := cfg.ValidateBasic(); err != nil {
		return nil, config.ErrConfig{Err: err}
	}
	plan, err := generator.NewPlan(cfg.Plan)
	if err != nil {
		return nil, config.ErrConfig{Err: config.ErrInSection{Section: "plan", Err: err}}
	}
	d.plan = plan

	if !tpfos.IsDir(dataDir) {
		return nil, ErrNotInitialized{Dir: dataDir}
	}

	var (
		mempoolMetrics *mempool.Metrics
		proxyMetrics   *proxy.Metrics
		storeMetrics   *store.Metrics
	)
	d.metrics, mempoolMetrics, proxyMetrics, storeMetrics = d.metricsProvider()

	db, err := d.dbProvider(&config.DBContext{ID: config.DefaultDBName, DataDir: dataDir})
	if err != nil {
		return nil, store.ErrStore{Op: "open", Err: err}
	}
	d.store = store.NewStore(db,
		store.WithLogger(d.logger.With("module", "store")),
		store.WithMetrics(storeMetrics),
	)
	if err := d.restore(mempoolMetrics, proxyMetrics); err != nil {
		d.store.Close()
		return nil, err
	}

	d.setState(StateReady)
	d.logger.Info("Loaded data directory",
		"dir", dataDir,
		"run_id", d.runID,
		"height", d.cs.Height(),
		"live_cells", d.cs.LiveCount(),
		"outcomes", d.store.OutcomeCount(),
		"draws", d.model.Draws(),
	)
	return d, nil
}

func (d *Driver) restore(mempoolMetrics *mempool.Metrics, proxyMetrics *proxy.Metrics) error {
	cs, ss, err := d.store.Load()
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotInitialized{Dir: d.dataDir}
	}
	if err != nil {
		return err
	}
	if err := cs.CheckConsistency(); err != nil {
		return store.ErrStore{Op: "load", Err: store.ErrCorrupted{Record: "chain state", Err: err}}
	}
	model, err := seed.Restore(ss)
	if err != nil {
		return store.ErrStore{Op: "load", Err: store.ErrCorrupted{Record: "seed state", Err: err}}
	}
	engine, err := d.engineProvider(d.cfg.Pool, cs, d.logger.With("module", "mempool"), mempoolMetrics)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	d.cs, d.model = cs, model
	d.adapter = proxy.NewPoolAdapter(engine, d.cfg.Pool.SubmitTimeout,
		proxy.WithGracePeriod(d.cfg.Pool.SubmitGrace),
		proxy.WithLogger(d.logger.With("module", "proxy")),
		proxy.WithMetrics(proxyMetrics),
	)
	var checkerOpts []invariant.Option
	if viewer, ok := d.adapter.CellViewer(); ok {
		checkerOpts = append(checkerOpts, invariant.WithCellViewer(viewer))
	}
	d.checker = invariant.NewChecker(checkerOpts...)
	return nil
}

// State returns the lifecycle state. Safe for concurrent use.
func (d *Driver) State() State {
	return State(d.state.Load())
}

func (d *Driver) setState(s State) {
	d.state.Store(uint32(s))
}

// RunID identifies this session in the outcome log.
func (d *Driver) RunID() string { return d.runID }

// Stats returns the counters of this session.
func (d *Driver) Stats() Stats { return d.stats }

// ChainState returns the harness' chain state. It must not be mutated and
// is only consistent while the driver is not running.
func (d *Driver) ChainState() *state.ChainState { return d.cs }

// Run iterates until ctx is canceled, max_iterations is reached, or the
// halting policy stops it. On cancellation the in-flight submission
// finishes, the block is sealed and a final snapshot is written before Run
// returns nil. A halt returns ErrFinding, also after a final snapshot. Any
// other error leaves the data directory at its last snapshot.
func (d *Driver) Run(ctx context.Context) error {
	if s := d.State(); s != StateReady {
		return ErrWrongState{Op: "run", State: s}
	}
	d.setState(StateRunning)
	defer d.setState(StateStopped)

	if d.cfg.Instrumentation.IsPrometheusEnabled() {
		srv := d.startPrometheusServer()
		defer func() {
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				d.logger.Error("Prometheus HTTP server Shutdown", "err", err)
			}
		}()
	}

	d.logger.Info("Starting run",
		"run_id", d.runID,
		"height", d.cs.Height(),
		"batch_size", d.cfg.Driver.BatchSize,
		"max_iterations", d.cfg.Driver.MaxIterations,
	)

	var sinceSnapshot uint64
	for {
		if ctx.Err() != nil {
			d.setState(StateDraining)
			d.logger.Info("Draining", "height", d.cs.Height())
			break
		}
		if limit := d.cfg.Driver.MaxIterations; limit > 0 && d.stats.Iterations >= limit {
			break
		}

		halt, err := d.iterate(ctx)
		if err != nil {
			return err
		}
		sinceSnapshot++

		if halt != nil {
			d.logger.Error("Halting", "err", halt)
			if err := d.snapshot(); err != nil {
				return err
			}
			return *halt
		}
		if sinceSnapshot >= d.cfg.Driver.SnapshotInterval {
			if err := d.snapshot(); err != nil {
				return err
			}
			sinceSnapshot = 0
		}
		d.sleep(ctx)
	}

	if err := d.snapshot(); err != nil {
		return err
	}
	d.logger.Info("Stopped run",
		"run_id", d.runID,
		"height", d.cs.Height(),
		"iterations", d.stats.Iterations,
		"submitted", d.stats.Submitted,
		"accepted", d.stats.Accepted,
		"findings", d.stats.Findings,
	)
	return nil
}

func (d *Driver) sleep(ctx context.Context) {
	if d.cfg.Driver.StepInterval <= 0 {
		return
	}
	t := time.NewTimer(d.cfg.Driver.StepInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// iterate builds one block: a generated batch, submitted in order, then
// sealed and committed to the engine.
func (d *Driver) iterate(ctx context.Context) (*ErrFinding, error) {
	defer func(start time.Time) {
		d.metrics.IterationDurationSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())

	if err := d.model.AdvanceClock(d.model.BlockInterval(d.cfg.Driver.BlockInterval)); err != nil {
		return nil, fmt.Errorf("advancing clock: %w", err)
	}

	cands, err := generator.GenerateBatch(d.plan, d.cs, d.model, d.cfg.Driver.BatchSize)
	if err != nil {
		d.logGenerationErrors(err)
	}
	for _, c := range cands {
		d.metrics.Candidates.With("strategy", string(c.Strategy), "expect", c.Expect.String()).Add(1)
	}
	return d.runBatch(ctx, cands)
}

func (d *Driver) logGenerationErrors(err error) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		d.logger.Debug("Failed to generate candidate", "err", e)
	}
	d.metrics.GenerationErrors.Add(float64(len(errs)))
}

// runBatch submits cands in order and seals the block. Submission stops
// early on cancellation or on a halt.
func (d *Driver) runBatch(ctx context.Context, cands []*generator.Candidate) (*ErrFinding, error) {
	d.checker.StartBatch()
	iteration := d.stats.Iterations + 1

	var halt *ErrFinding
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		rec, err := d.execute(ctx, iteration, c)
		if err != nil {
			return nil, err
		}
		if cause := d.haltCause(rec); cause != "" {
			halt = &ErrFinding{Height: rec.Height, Seq: rec.Seq, TxHash: rec.TxHash, Cause: cause}
			break
		}
	}

	header := d.cs.SealBlock(d.model.Now())
	// the engine must see every sealed block, cancellation or not
	if err := d.adapter.Commit(context.WithoutCancel(ctx), header); err != nil {
		d.stats.Faults++
		d.logger.Error("Engine failed to commit block", "height", header.Height, "err", err)
		if halt == nil && d.cfg.Driver.HaltOnFault {
			halt = &ErrFinding{Height: header.Height, Cause: "commit: " + err.Error()}
		}
	}

	d.stats.Iterations++
	d.metrics.Iterations.Add(1)
	d.metrics.Height.Set(float64(header.Height))
	d.metrics.LiveCells.Set(float64(d.cs.LiveCount()))
	d.logger.Info("Sealed block",
		"height", header.Height,
		"txs", len(header.TxHashes),
		"candidates", len(cands),
		"live_cells", d.cs.LiveCount(),
		"pool_size", d.adapter.PoolSize(),
	)
	return halt, nil
}

func (d *Driver) haltCause(rec *types.RunOutcome) string {
	if d.cfg.Driver.HaltOnViolation {
		for _, v := range rec.Violations {
			if v.Severity == types.SeverityFinding {
				return v.String()
			}
		}
	}
	if d.cfg.Driver.HaltOnFault && rec.Outcome.Kind == types.OutcomeEngineFault {
		return rec.Outcome.String()
	}
	return ""
}

// execute submits one candidate, applies it if accepted, checks the
// invariants and records the outcome.
func (d *Driver) execute(ctx context.Context, iteration uint64, c *generator.Candidate) (*types.RunOutcome, error) {
	before := d.cs.Capture(c.Tx)
	outcome := d.adapter.Submit(ctx, c.Tx)

	var vs []types.Violation
	if outcome.IsAccepted() {
		if _, err := d.cs.Apply(c.Tx); err != nil {
			vs = append(vs, types.Violation{
				Kind:     types.ViolationApplyFailure,
				Severity: types.SeverityFinding,
				Detail:   err.Error(),
			})
		}
	}
	vs = append(vs, d.checker.Check(before, c, outcome, d.cs)...)

	rec := &types.RunOutcome{
		RunID:        d.runID,
		Iteration:    iteration,
		StateVersion: before.Version,
		Height:       before.Height + 1,
		Timestamp:    d.model.Now(),
		TxHash:       c.Hash(),
		Strategy:     string(c.Strategy),
		Outcome:      outcome,
		Violations:   vs,
		RawTx:        c.Tx.Marshal(),
	}
	if err := d.appendOutcome(rec); err != nil {
		return nil, err
	}
	d.account(c, rec)
	return rec, nil
}

func (d *Driver) account(c *generator.Candidate, rec *types.RunOutcome) {
	d.stats.Submitted++
	switch rec.Outcome.Kind {
	case types.OutcomeAccepted:
		d.stats.Accepted++
	case types.OutcomeRejected:
		d.stats.Rejected++
	default:
		d.stats.Faults++
		d.logger.Warn("Engine fault", "tx", rec.TxHash, "seq", rec.Seq, "outcome", rec.Outcome)
	}

	for _, v := range rec.Violations {
		d.metrics.Violations.With("kind", v.Kind.String(), "severity", v.Severity.String()).Add(1)
		if v.Severity == types.SeverityFinding {
			d.stats.Findings++
			d.logger.Error("Invariant violated",
				"tx", rec.TxHash,
				"seq", rec.Seq,
				"candidate", c,
				"outcome", rec.Outcome,
				"violation", v,
			)
			continue
		}
		d.stats.Warnings++
		d.logger.Warn("Suspicious outcome", "tx", rec.TxHash, "seq", rec.Seq, "violation", v)
	}
	d.logger.Debug("Submitted transaction",
		"tx", rec.TxHash,
		"strategy", c.Strategy,
		"expect", c.Expect,
		"outcome", rec.Outcome,
	)
}

// appendOutcome writes rec, retrying with exponential backoff up to
// store_retries times.
func (d *Driver) appendOutcome(rec *types.RunOutcome) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.RetryNotify(
		func() error { return d.store.AppendOutcome(rec) },
		backoff.WithMaxRetries(b, d.cfg.Driver.StoreRetries),
		func(err error, next time.Duration) {
			d.metrics.StoreRetries.Add(1)
			d.logger.Error("Failed to append outcome, retrying", "err", err, "in", next)
		},
	)
}

func (d *Driver) snapshot() error {
	if err := d.store.Persist(d.cs, d.model.State()); err != nil {
		return err
	}
	d.logger.Debug("Persisted snapshot",
		"height", d.cs.Height(),
		"version", d.cs.Version,
		"outcomes", d.store.OutcomeCount(),
	)
	return nil
}

// Close releases the store. The driver can't be used afterwards.
func (d *Driver) Close() error {
	if s := d.State(); s == StateRunning || s == StateDraining {
		return ErrWrongState{Op: "close", State: s}
	}
	d.setState(StateStopped)
	if err := d.store.Close(); err != nil {
		return store.ErrStore{Op: "close", Err: err}
	}
	return nil
}

func (d *Driver) startPrometheusServer() *http.Server {
	srv := &http.Server{
		Addr: d.cfg.Instrumentation.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{},
			),
		),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			d.logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}
