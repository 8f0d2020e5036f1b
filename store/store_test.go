package store

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
	"github.com/cellfuzz/txpoolfuzz/version"
)

func makeGenesis(t *testing.T) *state.ChainState {
	t.Helper()
	cfg := config.DefaultGenesisConfig()
	cfg.Params.MinFeeRate = 0
	cfg.Params.ByteCapacity = 0
	cfg.Endowments = []config.EndowmentConfig{{Capacity: 1000, Count: 4}}
	cs, err := state.MakeGenesisState(cfg)
	require.NoError(t, err)
	return cs
}

// advance spends the first live cell and seals a block.
func advance(t *testing.T, cs *state.ChainState) {
	t.Helper()
	ref, cell := cs.LiveAt(0)
	tx := &types.Transaction{
		CellDeps: []types.CellDep{cs.Anchor.Dep},
		Inputs:   []types.CellInput{{Previous: ref}},
		Outputs: []types.CellOutput{{
			Capacity: cell.Output.Capacity,
			Lock: types.Script{
				CodeHash: cs.Anchor.DataHash,
				Args:     types.MockScriptArgs(0, 1, types.Sum(ref.TxHash[:]).Bytes()),
			},
		}},
	}
	_, err := cs.Apply(tx)
	require.NoError(t, err)
	cs.SealBlock(cs.Tip().Timestamp + 1000)
}

func seedState(draws uint64) types.SeedState {
	return types.SeedState{Seed: 7, Source: make([]byte, 16), Draws: draws, Clock: 1_700_000_000_000 + draws}
}

func TestLoadEmpty(t *testing.T) {
	s := NewStore(dbm.NewMemDB())
	empty, err := s.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	_, _, err = s.Load()
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.LoadGenesisConfig()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPersistAndLoad(t *testing.T) {
	db := dbm.NewMemDB()
	s := NewStore(db)
	cs := makeGenesis(t)
	require.NoError(t, s.Persist(cs, seedState(0)))
	assert.EqualValues(t, 1, s.HeaderCount())

	advance(t, cs)
	advance(t, cs)
	require.NoError(t, s.Persist(cs, seedState(42)))
	assert.EqualValues(t, 3, s.HeaderCount())

	restored, seed, err := NewStore(db).Load()
	require.NoError(t, err)
	assert.Equal(t, seedState(42), seed)
	assert.Equal(t, cs.MarshalRecord(), restored.MarshalRecord())
	assert.Equal(t, cs.Tip(), restored.Tip())
	assert.Equal(t, cs.Version, restored.Version)

	h, err := NewStore(db).LoadHeader(1)
	require.NoError(t, err)
	want, _ := cs.HeaderAt(1)
	assert.Equal(t, want, h)

	_, err = NewStore(db).LoadHeader(99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPersistRejectsShorterChain(t *testing.T) {
	s := NewStore(dbm.NewMemDB())
	cs := makeGenesis(t)
	old := cs.Copy()
	advance(t, cs)
	require.NoError(t, s.Persist(cs, seedState(1)))
	require.Error(t, s.Persist(old, seedState(1)))
}

func TestLoadArchivesOutcomesAfterSnapshot(t *testing.T) {
	db := dbm.NewMemDB()
	s := NewStore(db)
	cs := makeGenesis(t)

	for i := 0; i < 3; i++ {
		rec := &types.RunOutcome{RunID: "first", Iteration: 1, Strategy: "valid_spend", Outcome: types.Accepted()}
		require.NoError(t, s.AppendOutcome(rec))
		assert.EqualValues(t, i, rec.Seq)
	}
	require.NoError(t, s.Persist(cs, seedState(3)))
	for i := 0; i < 2; i++ {
		require.NoError(t, s.AppendOutcome(&types.RunOutcome{RunID: "first", Iteration: 2}))
	}
	assert.EqualValues(t, 5, s.OutcomeCount())

	reopened := NewStore(db)
	_, _, err := reopened.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 3, reopened.OutcomeCount())

	var seqs []uint64
	err = reopened.IterateOutcomes(0, func(rec *types.RunOutcome) error {
		seqs = append(seqs, rec.Seq)
		assert.Equal(t, "valid_spend", rec.Strategy)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, seqs)

	// the rolled back outcomes are kept aside
	var replayed []uint64
	require.NoError(t, reopened.IterateReplayedOutcomes(func(rec *types.RunOutcome) error {
		replayed = append(replayed, rec.Seq)
		assert.Equal(t, "first", rec.RunID)
		assert.EqualValues(t, 2, rec.Iteration)
		return nil
	}))
	assert.Equal(t, []uint64{3, 4}, replayed)

	// the log continues from the snapshot
	rec := &types.RunOutcome{RunID: "second", Iteration: 2}
	require.NoError(t, reopened.AppendOutcome(rec))
	assert.EqualValues(t, 3, rec.Seq)

	// a second crash at the same sequence numbers doesn't overwrite the first
	require.NoError(t, reopened.AppendOutcome(&types.RunOutcome{RunID: "second", Iteration: 2}))
	again := NewStore(db)
	_, _, err = again.Load()
	require.NoError(t, err)
	var runs []string
	require.NoError(t, again.IterateReplayedOutcomes(func(rec *types.RunOutcome) error {
		runs = append(runs, rec.RunID)
		return nil
	}))
	assert.Equal(t, []string{"first", "first", "second", "second"}, runs)
}

func TestReadSnapshotLeavesLogIntact(t *testing.T) {
	db := dbm.NewMemDB()
	s := NewStore(db)
	cs := makeGenesis(t)
	require.NoError(t, s.AppendOutcome(&types.RunOutcome{RunID: "a"}))
	require.NoError(t, s.Persist(cs, seedState(1)))
	for i := 0; i < 4; i++ {
		require.NoError(t, s.AppendOutcome(&types.RunOutcome{RunID: "a"}))
	}

	for i := 0; i < 2; i++ {
		reader := NewStore(db)
		snap, err := reader.ReadSnapshot()
		require.NoError(t, err)
		assert.EqualValues(t, 1, snap.NextSeq)
		assert.Equal(t, seedState(1), snap.Seed)
		assert.Equal(t, cs.MarshalRecord(), snap.ChainState.MarshalRecord())

		n := 0
		require.NoError(t, reader.IterateOutcomes(0, func(*types.RunOutcome) error {
			n++
			return nil
		}))
		assert.Equal(t, 5, n)
		require.NoError(t, reader.IterateReplayedOutcomes(func(*types.RunOutcome) error {
			t.Fatal("nothing should be archived by a read")
			return nil
		}))
	}

	_, err := NewStore(dbm.NewMemDB()).ReadSnapshot()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIterateOutcomesFrom(t *testing.T) {
	s := NewStore(dbm.NewMemDB())
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendOutcome(&types.RunOutcome{Iteration: uint64(i)}))
	}
	var iters []uint64
	require.NoError(t, s.IterateOutcomes(3, func(rec *types.RunOutcome) error {
		iters = append(iters, rec.Iteration)
		return nil
	}))
	assert.Equal(t, []uint64{3, 4}, iters)
}

func TestGenesisRoundTrip(t *testing.T) {
	s := NewStore(dbm.NewMemDB())
	cfg := config.DefaultGenesisConfig()
	cfg.Seed = 99
	require.NoError(t, s.SaveGenesisConfig(cfg))

	got, err := s.LoadGenesisConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadRejectsOtherStoreVersion(t *testing.T) {
	db := dbm.NewMemDB()
	s := NewStore(db)
	require.NoError(t, s.Persist(makeGenesis(t), seedState(0)))

	ss := storeState{Version: version.StoreVersion + 1, Headers: 1}
	require.NoError(t, db.Set(s.layout.CalcStoreStateKey(), ss.marshal()))

	_, _, err := NewStore(db).Load()
	var verr ErrStoreVersion
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, version.StoreVersion+1, verr.Got)
}

func TestLoadDetectsMissingHeaders(t *testing.T) {
	db := dbm.NewMemDB()
	s := NewStore(db)
	cs := makeGenesis(t)
	advance(t, cs)
	require.NoError(t, s.Persist(cs, seedState(0)))
	require.NoError(t, db.Delete(s.layout.CalcHeaderKey(1)))

	_, _, err := NewStore(db).Load()
	var cerr ErrCorrupted
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "header", cerr.Record)
}

func TestKeyLayoutOrdering(t *testing.T) {
	l := &v1Layout{}
	start, end := l.CalcHeaderRange()
	for _, h := range []uint64{0, 1, 255, 256, 1 << 40} {
		k := l.CalcHeaderKey(h)
		assert.True(t, string(start) <= string(k) && string(k) < string(end), "height %d", h)
	}
	assert.Less(t, string(l.CalcOutcomeKey(9)), string(l.CalcOutcomeKey(10)))
	assert.Less(t, string(l.CalcHeaderKey(1<<40)), string(l.CalcOutcomeKey(0)))

	// replayed outcomes never fall inside the live log's range
	_, logEnd := l.CalcOutcomeRange(0)
	start, end = l.CalcReplayedOutcomeRange()
	k := l.CalcReplayedOutcomeKey("", 0)
	assert.LessOrEqual(t, string(logEnd), string(start))
	assert.True(t, string(start) <= string(k) && string(k) < string(end))
}

func TestTruncateOutcomes(t *testing.T) {
	s := NewStore(dbm.NewMemDB())
	for i := 0; i < 4; i++ {
		require.NoError(t, s.AppendOutcome(&types.RunOutcome{Iteration: uint64(i)}))
	}
	n, err := s.TruncateOutcomes(1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 1, s.OutcomeCount())

	n, err = s.TruncateOutcomes(5)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 1, s.OutcomeCount())
}

func TestLoadSeed(t *testing.T) {
	s := NewStore(dbm.NewMemDB())
	_, err := s.LoadSeed()
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Persist(makeGenesis(t), seedState(11)))
	seed, err := s.LoadSeed()
	require.NoError(t, err)
	assert.Equal(t, seedState(11), seed)
}
