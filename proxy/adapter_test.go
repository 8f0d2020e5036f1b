package proxy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cellfuzz/txpoolfuzz/mempool"
	"github.com/cellfuzz/txpoolfuzz/types"
)

// mockEngine is a mock implementation of mempool.Engine.
type mockEngine struct {
	mock.Mock
}

var _ mempool.Engine = (*mockEngine)(nil)

func (m *mockEngine) CheckTx(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockEngine) Update(ctx context.Context, header types.Header) error {
	args := m.Called(ctx, header)
	return args.Error(0)
}

func (m *mockEngine) Size() int {
	args := m.Called()
	return args.Int(0)
}

func testTx() *types.Transaction {
	return &types.Transaction{
		Inputs:  []types.CellInput{{Previous: types.CellReference{TxHash: types.Sum([]byte("in"))}}},
		Outputs: []types.CellOutput{{Capacity: 1}},
	}
}

func TestSubmitClassifiesAnswers(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want types.Outcome
	}{
		{"accepted", nil, types.Accepted()},
		{
			"rejected",
			&mempool.ErrRejected{Reason: types.ReasonDoubleSpend, Err: errors.New("spent")},
			types.Outcome{Kind: types.OutcomeRejected, Reason: types.ReasonDoubleSpend},
		},
		{
			"wrapped rejection",
			fmt.Errorf("engine: %w", &mempool.ErrRejected{Reason: types.ReasonLowFee}),
			types.Outcome{Kind: types.OutcomeRejected, Reason: types.ReasonLowFee},
		},
		{
			"reason outside vocabulary",
			&mempool.ErrRejected{Reason: types.RejectReason(200)},
			types.Outcome{Kind: types.OutcomeRejected, Reason: types.ReasonUnclassified},
		},
		{
			"resource limit",
			fmt.Errorf("verifying: %w", mempool.ErrResourceLimit),
			types.Outcome{Kind: types.OutcomeEngineFault, Fault: types.FaultResourceLimit},
		},
		{
			"unexpected error",
			errors.New("boom"),
			types.Outcome{Kind: types.OutcomeEngineFault, Fault: types.FaultUnexpected},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			engine := new(mockEngine)
			tx := testTx()
			engine.On("CheckTx", mock.Anything, tx).Return(tc.err)

			got := NewPoolAdapter(engine, time.Second).Submit(context.Background(), tx)
			assert.Equal(t, tc.want.Kind, got.Kind)
			assert.Equal(t, tc.want.Reason, got.Reason)
			assert.Equal(t, tc.want.Fault, got.Fault)
			engine.AssertExpectations(t)
		})
	}
}

func TestSubmitRecoversPanics(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	engine := new(mockEngine)
	tx := testTx()
	engine.On("CheckTx", mock.Anything, tx).Run(func(mock.Arguments) {
		panic("engine bug")
	}).Return(nil)

	got := NewPoolAdapter(engine, time.Second).Submit(context.Background(), tx)
	assert.Equal(t, types.OutcomeEngineFault, got.Kind)
	assert.Equal(t, types.FaultPanic, got.Fault)
	assert.Contains(t, got.Detail, "engine bug")
}

func TestSubmitTimesOut(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	engine := new(mockEngine)
	tx := testTx()
	release := make(chan struct{})
	engine.On("CheckTx", mock.Anything, tx).Run(func(args mock.Arguments) {
		<-release
	}).Return(nil)

	a := NewPoolAdapter(engine, 20*time.Millisecond, WithGracePeriod(20*time.Millisecond))
	got := a.Submit(context.Background(), tx)
	assert.Equal(t, types.OutcomeEngineFault, got.Kind)
	assert.Equal(t, types.FaultTimeout, got.Fault)

	// the stuck call finishes and its goroutine exits
	close(release)
}

func TestSubmitAnswerAfterDeadlineWins(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	engine := new(mockEngine)
	tx := testTx()
	// the engine admits before its deadline but reports after it
	engine.On("CheckTx", mock.Anything, tx).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
		time.Sleep(20 * time.Millisecond)
	}).Return(nil)

	got := NewPoolAdapter(engine, 10*time.Millisecond).Submit(context.Background(), tx)
	assert.True(t, got.IsAccepted(), got.String())

	// without a grace period the same answer is lost to the timeout
	engine = new(mockEngine)
	release := make(chan struct{})
	engine.On("CheckTx", mock.Anything, tx).Run(func(args mock.Arguments) {
		<-release
	}).Return(nil)
	got = NewPoolAdapter(engine, 10*time.Millisecond, WithGracePeriod(0)).Submit(context.Background(), tx)
	assert.Equal(t, types.FaultTimeout, got.Fault)
	close(release)
}

func TestSubmitEngineHonoringDeadline(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	engine := new(mockEngine)
	tx := testTx()
	engine.On("CheckTx", mock.Anything, tx).Return(context.DeadlineExceeded).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	})

	got := NewPoolAdapter(engine, 10*time.Millisecond).Submit(context.Background(), tx)
	assert.Equal(t, types.FaultTimeout, got.Fault)
}

func TestSubmitIsDetachedFromCancellation(t *testing.T) {
	engine := new(mockEngine)
	tx := testTx()
	engine.On("CheckTx", mock.Anything, tx).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, ctx.Err())
	}).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := NewPoolAdapter(engine, time.Second).Submit(ctx, tx)
	assert.True(t, got.IsAccepted(), got.String())
}

func TestCommit(t *testing.T) {
	engine := new(mockEngine)
	h := types.Header{Height: 1}
	engine.On("Update", mock.Anything, h).Return(nil).Once()
	engine.On("Update", mock.Anything, h).Run(func(mock.Arguments) {
		panic("update bug")
	}).Return(nil).Once()

	a := NewPoolAdapter(engine, time.Second)
	require.NoError(t, a.Commit(context.Background(), h))

	err := a.Commit(context.Background(), h)
	var p ErrEnginePanic
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "update", p.Method)
	engine.AssertExpectations(t)
}

func TestCellViewer(t *testing.T) {
	_, ok := NewPoolAdapter(new(mockEngine), time.Second).CellViewer()
	assert.False(t, ok)
}
