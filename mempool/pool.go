package mempool

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/libs/log"
	tpfsync "github.com/cellfuzz/txpoolfuzz/libs/sync"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

type poolCell struct {
	output types.CellOutput
	// height of the block that created the cell. Cells created by pending
	// transactions carry the height of the next block.
	createdAt uint64
}

type poolTx struct {
	tx     *types.Transaction
	hash   types.Hash
	size   int
	cycles uint64
}

// TxPool is an in-process reference engine. It verifies transactions against
// its own view of the mock chain and keeps admitted transactions pending
// until a header commits them.
//
// Verification order:
//
//	recent rejects, duplicates, sanity, size, duplicate inputs,
//	resolution of inputs, cell deps and header deps, since maturity,
//	capacity, witnesses, scripts, cycles, pool size.
//
// The first failing check determines the rejection reason.
type TxPool struct {
	config config.PoolConfig
	params types.ConsensusParams

	// mtx guards every field below.
	mtx tpfsync.Mutex

	headers   []types.Header
	headerIdx map[types.Hash]uint64

	// cells holds committed cells and cells created by pending txs.
	cells map[types.CellReference]*poolCell
	// codeCells can be referenced as deps but never spent.
	codeCells map[types.CellReference]types.CellOutput
	// spentBy maps cells consumed by pending txs to the consuming tx.
	spentBy map[types.CellReference]types.Hash
	// dead remembers committed spends so that reusing a consumed cell is
	// told apart from referencing a cell that never existed.
	dead *lru.Cache[types.CellReference, struct{}]

	pending   []types.Hash
	pendingTx map[types.Hash]*poolTx

	known         TxCache[struct{}]
	recentRejects TxCache[types.RejectReason]

	logger  log.Logger
	metrics *Metrics
}

var (
	_ Engine     = (*TxPool)(nil)
	_ CellViewer = (*TxPool)(nil)
)

// TxPoolOption sets an optional parameter on the pool.
type TxPoolOption func(*TxPool)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) TxPoolOption {
	return func(p *TxPool) { p.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) TxPoolOption {
	return func(p *TxPool) { p.logger = logger }
}

// NewTxPool returns a pool whose view of the chain is a copy of cs. Cells
// created by transactions pending in cs are treated as created by pending
// transactions, and those transactions count as known.
func NewTxPool(cfg config.PoolConfig, cs *state.ChainState, options ...TxPoolOption) *TxPool {
	deadSize := cfg.KnownTxsSize
	if n := cs.DeadCount(); n > deadSize {
		deadSize = n
	}
	if deadSize <= 0 {
		deadSize = 1
	}
	dead, err := lru.New[types.CellReference, struct{}](deadSize)
	if err != nil {
		panic(err)
	}

	p := &TxPool{
		config:        cfg,
		params:        cs.Params,
		headerIdx:     make(map[types.Hash]uint64, cs.HeaderCount()),
		cells:         make(map[types.CellReference]*poolCell, cs.LiveCount()),
		codeCells:     map[types.CellReference]types.CellOutput{cs.Anchor.Dep.OutPoint: cs.Anchor.Output},
		spentBy:       make(map[types.CellReference]types.Hash),
		dead:          dead,
		pendingTx:     make(map[types.Hash]*poolTx),
		known:         newTxCache[struct{}](cfg.KnownTxsSize),
		recentRejects: newTxCache[types.RejectReason](cfg.RecentRejectSize),
		logger:        log.NewNopLogger(),
		metrics:       NopMetrics(),
	}
	for _, option := range options {
		option(p)
	}

	for height := uint64(0); height < uint64(cs.HeaderCount()); height++ {
		h, _ := cs.HeaderAt(height)
		p.appendHeader(h)
	}
	cs.IterateLive(func(ref types.CellReference, c state.LiveCell) bool {
		p.cells[ref] = &poolCell{output: c.Output, createdAt: c.CreatedAt}
		return true
	})
	for i := 0; i < cs.DeadCount(); i++ {
		ref, _ := cs.DeadAt(i)
		p.dead.Add(ref, struct{}{})
	}
	for _, h := range cs.PendingTxs() {
		p.known.Push(h, struct{}{})
	}
	return p
}

func (p *TxPool) appendHeader(h types.Header) {
	p.headerIdx[h.Hash] = h.Height
	p.headers = append(p.headers, h)
}

func (p *TxPool) tip() types.Header {
	return p.headers[len(p.headers)-1]
}

// Size implements Engine.
func (p *TxPool) Size() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.pending)
}

// LiveCell implements CellViewer.
func (p *TxPool) LiveCell(ref types.CellReference) (types.CellOutput, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, spent := p.spentBy[ref]; spent {
		return types.CellOutput{}, false
	}
	c, ok := p.cells[ref]
	if !ok {
		return types.CellOutput{}, false
	}
	return c.output, true
}

// LiveCount implements CellViewer.
func (p *TxPool) LiveCount() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.cells) - len(p.spentBy)
}

// CheckTx implements Engine. Safe for concurrent use; submissions are
// verified one at a time.
func (p *TxPool) CheckTx(ctx context.Context, tx *types.Transaction) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	hash := tx.Hash()
	if reason, ok := p.recentRejects.Get(hash); ok {
		p.metrics.RecentRejectHits.Add(1)
		p.metrics.RejectedTxs.With("reason", reason.String()).Add(1)
		return reject(reason, "tx %v was recently rejected", hash)
	}

	ptx, err := p.verify(ctx, tx, hash)
	if err != nil {
		var rej *ErrRejected
		if errors.As(err, &rej) {
			if rej.Reason.IsResolveFailure() {
				p.recentRejects.Push(hash, rej.Reason)
			}
			p.metrics.RejectedTxs.With("reason", rej.Reason.String()).Add(1)
			p.logger.Debug("Rejected transaction", "tx", hash, "reason", rej.Reason, "err", rej.Err)
		}
		return err
	}

	// nothing is admitted once the caller gave up
	if err := ctx.Err(); err != nil {
		return err
	}
	p.admit(ptx)
	return nil
}

// admit adds a verified transaction to the pool.
func (p *TxPool) admit(ptx *poolTx) {
	nextHeight := p.tip().Height + 1
	for _, in := range ptx.tx.Inputs {
		p.spentBy[in.Previous] = ptx.hash
	}
	for i, out := range ptx.tx.Outputs {
		ref := types.CellReference{TxHash: ptx.hash, Index: uint32(i)}
		p.cells[ref] = &poolCell{output: out, createdAt: nextHeight}
	}
	p.pending = append(p.pending, ptx.hash)
	p.pendingTx[ptx.hash] = ptx

	p.metrics.AcceptedTxs.Add(1)
	p.metrics.TxSizeBytes.Observe(float64(ptx.size))
	p.metrics.ScriptCycles.Observe(float64(ptx.cycles))
	p.metrics.Size.Set(float64(len(p.pending)))

	p.logger.Debug(
		"Added transaction",
		"tx", ptx.hash,
		"height", nextHeight,
		"total", len(p.pending),
	)
}

// Update implements Engine. Transactions listed in header are committed:
// their inputs become dead and they are remembered as known. Transactions
// left pending are re-stamped for the block after header.
func (p *TxPool) Update(ctx context.Context, header types.Header) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	tip := p.tip()
	if header.Height != tip.Height+1 || header.ParentHash != tip.Hash {
		return ErrHeaderMismatch{Tip: tip, Header: header}
	}

	committed := make(map[types.Hash]struct{}, len(header.TxHashes))
	for _, h := range header.TxHashes {
		if _, ok := p.pendingTx[h]; ok {
			committed[h] = struct{}{}
			continue
		}
		if !p.known.Has(h) {
			return fmt.Errorf("%w: %v", ErrUnknownBlockTx, h)
		}
	}

	p.logger.Debug("Update", "height", header.Height, "len(txs)", len(header.TxHashes))

	p.appendHeader(header)

	remaining := p.pending[:0]
	for _, h := range p.pending {
		ptx := p.pendingTx[h]
		if _, ok := committed[h]; !ok {
			remaining = append(remaining, h)
			for i := range ptx.tx.Outputs {
				p.cells[types.CellReference{TxHash: h, Index: uint32(i)}].createdAt = header.Height + 1
			}
			continue
		}
		for _, in := range ptx.tx.Inputs {
			delete(p.spentBy, in.Previous)
			delete(p.cells, in.Previous)
			p.dead.Add(in.Previous, struct{}{})
		}
		delete(p.pendingTx, h)
		p.known.Push(h, struct{}{})
	}
	p.pending = remaining

	p.metrics.Size.Set(float64(len(p.pending)))
	return nil
}
