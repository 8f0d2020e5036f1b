package state

import (
	"github.com/cellfuzz/txpoolfuzz/types"
)

// ConsumedCell is a cell removed from the live set by Apply.
type ConsumedCell struct {
	Ref  types.CellReference
	Cell LiveCell
}

// ApplyResult describes the effect of one Apply.
type ApplyResult struct {
	TxHash   types.Hash
	Consumed []ConsumedCell
	Created  []types.CellReference
}

// Apply records an accepted transaction: its inputs leave the live set and
// its outputs join it, created at the height of the next block. If any input
// is not live, is spent twice, or any output already exists, Apply returns
// ErrInvariantViolation and leaves the state untouched.
func (s *ChainState) Apply(tx *types.Transaction) (*ApplyResult, error) {
	txHash := tx.Hash()

	seen := make(map[types.CellReference]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		ref := in.Previous
		if _, dup := seen[ref]; dup {
			return nil, ErrInvariantViolation{TxHash: txHash, Ref: ref, Reason: "input spent twice"}
		}
		seen[ref] = struct{}{}
		if !s.IsLive(ref) {
			return nil, ErrInvariantViolation{TxHash: txHash, Ref: ref, Reason: "input is not live"}
		}
	}
	for i := range tx.Outputs {
		ref := types.CellReference{TxHash: txHash, Index: uint32(i)}
		if _, ok := s.live[ref]; ok {
			return nil, ErrInvariantViolation{TxHash: txHash, Ref: ref, Reason: "output already live"}
		}
		if _, ok := s.dead[ref]; ok {
			return nil, ErrInvariantViolation{TxHash: txHash, Ref: ref, Reason: "output already consumed"}
		}
	}

	next := s.Height() + 1
	res := &ApplyResult{
		TxHash:   txHash,
		Consumed: make([]ConsumedCell, 0, len(tx.Inputs)),
		Created:  make([]types.CellReference, 0, len(tx.Outputs)),
	}
	for _, in := range tx.Inputs {
		cell := s.removeLive(in.Previous)
		s.addDead(in.Previous, DeadCell{ConsumedBy: txHash, Height: next})
		res.Consumed = append(res.Consumed, ConsumedCell{Ref: in.Previous, Cell: cell})
	}
	for i, out := range tx.Outputs {
		ref := types.CellReference{TxHash: txHash, Index: uint32(i)}
		s.addLive(ref, LiveCell{Output: out, CreatedAt: next})
		res.Created = append(res.Created, ref)
	}
	s.pending = append(s.pending, txHash)
	s.Version++
	return res, nil
}

// SealBlock closes the current block: the pending transactions are recorded
// in a new header at tip+1. Timestamps never go backwards; a timestamp
// earlier than the tip's is raised to it.
func (s *ChainState) SealBlock(timestamp uint64) types.Header {
	parent := s.Tip()
	if timestamp < parent.Timestamp {
		timestamp = parent.Timestamp
	}
	h := types.Header{
		Height:        parent.Height + 1,
		ParentHash:    parent.Hash,
		Timestamp:     timestamp,
		CompactTarget: parent.CompactTarget,
		Epoch:         (parent.Height + 1) / s.Params.EpochLength,
		TxHashes:      s.pending,
	}
	h.Hash = h.ComputeHash()
	s.appendHeader(h)
	s.pending = nil
	s.Version++
	return h
}

func (s *ChainState) appendHeader(h types.Header) {
	s.headerIndex[h.Hash] = h.Height
	s.headers = append(s.headers, h)
}
