package store

import (
	"github.com/google/orderedcode"
)

// KeyLayout computes database keys.
type KeyLayout interface {
	CalcStoreStateKey() []byte

	CalcChainStateKey() []byte

	CalcSeedStateKey() []byte

	CalcGenesisKey() []byte

	CalcHeaderKey(height uint64) []byte

	// CalcHeaderRange returns the [start, end) range holding every header.
	CalcHeaderRange() (start, end []byte)

	CalcOutcomeKey(seq uint64) []byte

	// CalcOutcomeRange returns the [start, end) range of outcomes with
	// sequence numbers at or above from.
	CalcOutcomeRange(from uint64) (start, end []byte)

	// CalcReplayedOutcomeKey returns the key an outcome is archived under
	// once the iteration that recorded it is rolled back.
	CalcReplayedOutcomeKey(runID string, seq uint64) []byte

	CalcReplayedOutcomeRange() (start, end []byte)
}

type v1Layout struct{}

var _ KeyLayout = (*v1Layout)(nil)

// key prefixes.
const (
	// prefixes are unique across the fuzzer db.
	prefixStoreState = int64(0)
	prefixChainState = int64(1)
	prefixSeedState  = int64(2)
	prefixGenesis    = int64(3)
	prefixHeader     = int64(4)
	prefixOutcome    = int64(5)
	prefixReplayed   = int64(6)
)

func mustAppend(items ...any) []byte {
	key, err := orderedcode.Append(nil, items...)
	if err != nil {
		panic(err)
	}
	return key
}

// CalcStoreStateKey implements KeyLayout.
func (*v1Layout) CalcStoreStateKey() []byte {
	return mustAppend(prefixStoreState)
}

// CalcChainStateKey implements KeyLayout.
func (*v1Layout) CalcChainStateKey() []byte {
	return mustAppend(prefixChainState)
}

// CalcSeedStateKey implements KeyLayout.
func (*v1Layout) CalcSeedStateKey() []byte {
	return mustAppend(prefixSeedState)
}

// CalcGenesisKey implements KeyLayout.
func (*v1Layout) CalcGenesisKey() []byte {
	return mustAppend(prefixGenesis)
}

// CalcHeaderKey implements KeyLayout.
func (*v1Layout) CalcHeaderKey(height uint64) []byte {
	return mustAppend(prefixHeader, height)
}

// CalcHeaderRange implements KeyLayout.
func (*v1Layout) CalcHeaderRange() (start, end []byte) {
	return mustAppend(prefixHeader), mustAppend(prefixHeader + 1)
}

// CalcOutcomeKey implements KeyLayout.
func (*v1Layout) CalcOutcomeKey(seq uint64) []byte {
	return mustAppend(prefixOutcome, seq)
}

// CalcOutcomeRange implements KeyLayout.
func (*v1Layout) CalcOutcomeRange(from uint64) (start, end []byte) {
	return mustAppend(prefixOutcome, from), mustAppend(prefixOutcome + 1)
}

// CalcReplayedOutcomeKey implements KeyLayout.
func (*v1Layout) CalcReplayedOutcomeKey(runID string, seq uint64) []byte {
	return mustAppend(prefixReplayed, runID, seq)
}

// CalcReplayedOutcomeRange implements KeyLayout.
func (*v1Layout) CalcReplayedOutcomeRange() (start, end []byte) {
	return mustAppend(prefixReplayed), mustAppend(prefixReplayed + 1)
}
