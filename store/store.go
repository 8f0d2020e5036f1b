package store

import (
	"errors"
	"fmt"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/go-kit/kit/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/protobuf/encoding/protowire"
	"gopkg.in/yaml.v3"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/libs/log"
	tpfsync "github.com/cellfuzz/txpoolfuzz/libs/sync"
	"github.com/cellfuzz/txpoolfuzz/libs/wire"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
	"github.com/cellfuzz/txpoolfuzz/version"
)

/*
Store is the fuzzer's durable memory. It holds:
  - the genesis configuration the data directory was initialized with
  - one snapshot: the chain state record, the seed state and a store state
    record tying them to a header height and an outcome sequence number
  - every sealed header, keyed by height
  - the outcome log, keyed by sequence number

A snapshot is written in a single synced batch, so a crash leaves either the
previous or the new snapshot. Outcomes are appended between snapshots without
syncing. Outcomes recorded after the last snapshot belong to iterations that
will be replayed: Load moves them to a separate replayed range, where they
stay readable but no longer occupy sequence numbers.
*/
type Store struct {
	db      dbm.DB
	layout  KeyLayout
	metrics *Metrics
	logger  log.Logger

	// mtx guards the fields below. They mirror the store state record of the
	// last snapshot plus the outcomes appended since.
	mtx     tpfsync.RWMutex
	headers uint64 // number of persisted headers
	nextSeq uint64 // sequence number of the next outcome

	headerCache *lru.Cache[uint64, types.Header]
}

// Option sets an optional parameter on the Store.
type Option func(*Store)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a Store over the given DB. The DB may be empty.
func NewStore(db dbm.DB, options ...Option) *Store {
	s := &Store{
		db:      db,
		layout:  &v1Layout{},
		metrics: NopMetrics(),
		logger:  log.NewNopLogger(),
	}
	for _, option := range options {
		option(s)
	}
	var err error
	// err can only occur if the argument is non-positive.
	s.headerCache, err = lru.New[uint64, types.Header](256)
	if err != nil {
		panic(err)
	}
	return s
}

// storeState ties a snapshot to its headers and outcome log.
type storeState struct {
	Version uint64
	Headers uint64
	NextSeq uint64
}

func (ss storeState) marshal() []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, ss.Version)
	b = wire.AppendVarint(b, 2, ss.Headers)
	return wire.AppendVarint(b, 3, ss.NextSeq)
}

func (ss *storeState) unmarshal(b []byte) error {
	*ss = storeState{}
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			ss.Version, n, err = wire.ConsumeVarint(num, typ, b)
		case 2:
			ss.Headers, n, err = wire.ConsumeVarint(num, typ, b)
		case 3:
			ss.NextSeq, n, err = wire.ConsumeVarint(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
}

// IsEmpty reports whether no snapshot was ever persisted.
func (s *Store) IsEmpty() (bool, error) {
	bz, err := s.db.Get(s.layout.CalcStoreStateKey())
	if err != nil {
		return false, err
	}
	return len(bz) == 0, nil
}

func (s *Store) saveGenesisConfig(cfg config.GenesisConfig) error {
	defer addTimeSample(s.metrics.StoreAccessDurationSeconds.With("method", "save_genesis"), time.Now())()

	bz, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	return s.db.SetSync(s.layout.CalcGenesisKey(), bz)
}

func (s *Store) loadGenesisConfig() (config.GenesisConfig, error) {
	defer addTimeSample(s.metrics.StoreAccessDurationSeconds.With("method", "load_genesis"), time.Now())()

	var cfg config.GenesisConfig
	bz, err := s.db.Get(s.layout.CalcGenesisKey())
	if err != nil {
		return cfg, err
	}
	if len(bz) == 0 {
		return cfg, ErrNotFound
	}
	if err := yaml.Unmarshal(bz, &cfg); err != nil {
		return cfg, ErrCorrupted{Record: "genesis", Err: err}
	}
	return cfg, nil
}

func (s *Store) persist(cs *state.ChainState, seed types.SeedState) error {
	defer addTimeSample(s.metrics.StoreAccessDurationSeconds.With("method", "persist"), time.Now())()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	count := uint64(cs.HeaderCount())
	if count < s.headers {
		return fmt.Errorf("chain state has %d headers, store already holds %d", count, s.headers)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for height := s.headers; height < count; height++ {
		h, _ := cs.HeaderAt(height)
		if err := batch.Set(s.layout.CalcHeaderKey(height), h.Marshal()); err != nil {
			return err
		}
	}
	record := cs.MarshalRecord()
	if err := batch.Set(s.layout.CalcChainStateKey(), record); err != nil {
		return err
	}
	if err := batch.Set(s.layout.CalcSeedStateKey(), seed.Marshal()); err != nil {
		return err
	}
	ss := storeState{Version: version.StoreVersion, Headers: count, NextSeq: s.nextSeq}
	if err := batch.Set(s.layout.CalcStoreStateKey(), ss.marshal()); err != nil {
		return err
	}
	if err := batch.WriteSync(); err != nil {
		return err
	}

	s.headers = count
	s.metrics.ChainStateBytes.Set(float64(len(record)))
	return nil
}

// Snapshot is the last persisted snapshot as read from the DB.
type Snapshot struct {
	ChainState *state.ChainState
	Seed       types.SeedState
	// NextSeq is the first outcome sequence number not covered by the
	// snapshot. Outcomes at or above it were recorded by iterations that
	// have not been persisted.
	NextSeq uint64
}

func (s *Store) readSnapshot() (Snapshot, storeState, error) {
	var (
		snap Snapshot
		ss   storeState
	)
	bz, err := s.db.Get(s.layout.CalcStoreStateKey())
	if err != nil {
		return snap, ss, err
	}
	if len(bz) == 0 {
		return snap, ss, ErrNotFound
	}
	if err := ss.unmarshal(bz); err != nil {
		return snap, ss, ErrCorrupted{Record: "store state", Err: err}
	}
	if ss.Version != version.StoreVersion {
		return snap, ss, ErrStoreVersion{Got: ss.Version, Want: version.StoreVersion}
	}

	headers, err := s.loadHeaders(ss.Headers)
	if err != nil {
		return snap, ss, err
	}

	bz, err = s.db.Get(s.layout.CalcChainStateKey())
	if err != nil {
		return snap, ss, err
	}
	if len(bz) == 0 {
		return snap, ss, ErrCorrupted{Record: "chain state", Err: errors.New("missing")}
	}
	cs, err := state.RestoreChainState(bz, headers)
	if err != nil {
		return snap, ss, ErrCorrupted{Record: "chain state", Err: err}
	}

	bz, err = s.db.Get(s.layout.CalcSeedStateKey())
	if err != nil {
		return snap, ss, err
	}
	if len(bz) == 0 {
		return snap, ss, ErrCorrupted{Record: "seed state", Err: errors.New("missing")}
	}
	if err := snap.Seed.Unmarshal(bz); err != nil {
		return snap, ss, ErrCorrupted{Record: "seed state", Err: err}
	}

	snap.ChainState = cs
	snap.NextSeq = ss.NextSeq
	return snap, ss, nil
}

func (s *Store) load() (*state.ChainState, types.SeedState, error) {
	defer addTimeSample(s.metrics.StoreAccessDurationSeconds.With("method", "load"), time.Now())()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	snap, ss, err := s.readSnapshot()
	if err != nil {
		return nil, snap.Seed, err
	}

	moved, err := s.archiveOutcomesLocked(ss.NextSeq)
	if err != nil {
		return nil, snap.Seed, err
	}
	if moved > 0 {
		s.logger.Info("archived outcomes recorded after the last snapshot", "count", moved, "from_seq", ss.NextSeq)
	}

	s.headers = ss.Headers
	s.nextSeq = ss.NextSeq
	return snap.ChainState, snap.Seed, nil
}

// archiveOutcomesLocked moves outcomes at or above from out of the log and
// into the replayed range, in one synced batch.
func (s *Store) archiveOutcomesLocked(from uint64) (int, error) {
	start, end := s.layout.CalcOutcomeRange(from)
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return 0, err
	}
	type move struct{ from, to, value []byte }
	var moves []move
	for ; it.Valid(); it.Next() {
		value := append([]byte(nil), it.Value()...)
		rec := new(types.RunOutcome)
		if err := rec.Unmarshal(value); err != nil {
			it.Close()
			return 0, ErrCorrupted{Record: "outcome", Err: err}
		}
		moves = append(moves, move{
			from:  append([]byte(nil), it.Key()...),
			to:    s.layout.CalcReplayedOutcomeKey(rec.RunID, rec.Seq),
			value: value,
		})
	}
	if err := it.Error(); err != nil {
		it.Close()
		return 0, err
	}
	if err := it.Close(); err != nil {
		return 0, err
	}
	if len(moves) == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, m := range moves {
		if err := batch.Set(m.to, m.value); err != nil {
			return 0, err
		}
		if err := batch.Delete(m.from); err != nil {
			return 0, err
		}
	}
	return len(moves), batch.WriteSync()
}

func (s *Store) loadHeaders(count uint64) ([]types.Header, error) {
	start, end := s.layout.CalcHeaderRange()
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	headers := make([]types.Header, 0, count)
	for ; it.Valid() && uint64(len(headers)) < count; it.Next() {
		var h types.Header
		if err := h.Unmarshal(it.Value()); err != nil {
			return nil, ErrCorrupted{Record: "header", Err: err}
		}
		if h.Height != uint64(len(headers)) {
			return nil, ErrCorrupted{
				Record: "header",
				Err:    fmt.Errorf("expected height %d, found %d", len(headers), h.Height),
			}
		}
		headers = append(headers, h)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if uint64(len(headers)) != count {
		return nil, ErrCorrupted{
			Record: "header",
			Err:    fmt.Errorf("snapshot expects %d headers, found %d", count, len(headers)),
		}
	}
	return headers, nil
}

// LoadHeader returns the persisted header at the given height.
func (s *Store) LoadHeader(height uint64) (types.Header, error) {
	if h, ok := s.headerCache.Get(height); ok {
		return h, nil
	}
	var h types.Header
	bz, err := s.db.Get(s.layout.CalcHeaderKey(height))
	if err != nil {
		return h, err
	}
	if len(bz) == 0 {
		return h, ErrNotFound
	}
	if err := h.Unmarshal(bz); err != nil {
		return h, ErrCorrupted{Record: "header", Err: err}
	}
	s.headerCache.Add(height, h)
	return h, nil
}

// HeaderCount returns the number of headers covered by the last snapshot.
func (s *Store) HeaderCount() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.headers
}

// OutcomeCount returns the number of outcomes in the log.
func (s *Store) OutcomeCount() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.nextSeq
}

func (s *Store) appendOutcome(rec *types.RunOutcome) error {
	defer addTimeSample(s.metrics.StoreAccessDurationSeconds.With("method", "append_outcome"), time.Now())()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	rec.Seq = s.nextSeq
	if err := s.db.Set(s.layout.CalcOutcomeKey(rec.Seq), rec.Marshal()); err != nil {
		return err
	}
	s.nextSeq++
	s.metrics.OutcomeRecords.Add(1)
	return nil
}

// IterateOutcomes calls fn for each outcome with a sequence number at or
// above from, in order. Iteration stops at the first error returned by fn.
func (s *Store) IterateOutcomes(from uint64, fn func(*types.RunOutcome) error) error {
	start, end := s.layout.CalcOutcomeRange(from)
	return s.iterate(start, end, fn)
}

func (s *Store) iterate(start, end []byte, fn func(*types.RunOutcome) error) error {
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		rec := new(types.RunOutcome)
		if err := rec.Unmarshal(it.Value()); err != nil {
			return ErrCorrupted{Record: "outcome", Err: err}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return it.Error()
}

// TruncateOutcomes deletes outcomes with sequence numbers at or above from
// and returns how many were deleted. The next appended outcome gets
// sequence number from.
func (s *Store) TruncateOutcomes(from uint64) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	n, err := s.truncateOutcomesLocked(from)
	if err != nil {
		return n, ErrStore{Op: "truncate outcomes", Err: err}
	}
	if from < s.nextSeq {
		s.nextSeq = from
	}
	return n, nil
}

func (s *Store) truncateOutcomesLocked(from uint64) (int, error) {
	start, end := s.layout.CalcOutcomeRange(from)
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return 0, err
	}
	var keys [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		it.Close()
		return 0, err
	}
	if err := it.Close(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, key := range keys {
		if err := batch.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), batch.WriteSync()
}

// SaveGenesisConfig records the configuration a data directory was
// initialized with. It is written once, before the first snapshot.
func (s *Store) SaveGenesisConfig(cfg config.GenesisConfig) error {
	if err := s.saveGenesisConfig(cfg); err != nil {
		return ErrStore{Op: "save genesis", Err: err}
	}
	return nil
}

// LoadGenesisConfig returns the configuration saved by SaveGenesisConfig.
func (s *Store) LoadGenesisConfig() (config.GenesisConfig, error) {
	cfg, err := s.loadGenesisConfig()
	if err != nil {
		return cfg, ErrStore{Op: "load genesis", Err: err}
	}
	return cfg, nil
}

// Persist writes a snapshot of the chain state and the seed state. Only
// headers sealed since the previous snapshot are written. Outcomes appended
// so far become part of the snapshot.
func (s *Store) Persist(cs *state.ChainState, seed types.SeedState) error {
	if err := s.persist(cs, seed); err != nil {
		return ErrStore{Op: "persist", Err: err}
	}
	return nil
}

// Load restores the last snapshot. Outcomes recorded after it are moved to
// the replayed range and the next appended outcome continues from the
// snapshot's sequence number. An error wrapping ErrNotFound is returned if
// no snapshot exists.
func (s *Store) Load() (*state.ChainState, types.SeedState, error) {
	cs, seed, err := s.load()
	if err != nil {
		return nil, seed, ErrStore{Op: "load", Err: err}
	}
	return cs, seed, nil
}

// ReadSnapshot reads the last snapshot without changing the DB or the
// store's counters. Outcomes recorded after the snapshot stay in the log.
func (s *Store) ReadSnapshot() (Snapshot, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	snap, _, err := s.readSnapshot()
	if err != nil {
		return snap, ErrStore{Op: "read snapshot", Err: err}
	}
	return snap, nil
}

// IterateReplayedOutcomes calls fn for each archived outcome, ordered by run
// ID and then sequence number.
func (s *Store) IterateReplayedOutcomes(fn func(*types.RunOutcome) error) error {
	start, end := s.layout.CalcReplayedOutcomeRange()
	return s.iterate(start, end, fn)
}

// LoadSeed returns the seed state of the last snapshot without restoring
// the chain state.
func (s *Store) LoadSeed() (types.SeedState, error) {
	var seed types.SeedState
	bz, err := s.db.Get(s.layout.CalcSeedStateKey())
	if err != nil {
		return seed, ErrStore{Op: "load seed", Err: err}
	}
	if len(bz) == 0 {
		return seed, ErrStore{Op: "load seed", Err: ErrNotFound}
	}
	if err := seed.Unmarshal(bz); err != nil {
		return seed, ErrStore{Op: "load seed", Err: ErrCorrupted{Record: "seed state", Err: err}}
	}
	return seed, nil
}

// AppendOutcome assigns the next sequence number to rec and writes it.
func (s *Store) AppendOutcome(rec *types.RunOutcome) error {
	if err := s.appendOutcome(rec); err != nil {
		return ErrStore{Op: "append outcome", Err: err}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	return s.db.Close()
}

func addTimeSample(m metrics.Histogram, start time.Time) func() {
	return func() { m.Observe(time.Since(start).Seconds()) }
}
