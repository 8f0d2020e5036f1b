package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellfuzz/txpoolfuzz/types"
)

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "accepted", types.Accepted().Label())
	assert.Equal(t, "rejected/double_spend", types.Rejected(types.ReasonDoubleSpend, "x").Label())
	assert.Equal(t, "engine_fault/timeout", types.EngineFault(types.FaultTimeout, "").Label())
	assert.Equal(t, "rejected/low_fee: fee 1 < 2", types.Rejected(types.ReasonLowFee, "fee 1 < 2").String())
}

func TestReasonSet(t *testing.T) {
	s := types.NewReasonSet(types.ReasonDoubleSpend, types.ReasonUnknownInput)
	assert.True(t, s.Has(types.ReasonDoubleSpend))
	assert.False(t, s.Has(types.ReasonLowFee))
	assert.False(t, s.IsEmpty())
	assert.Equal(t, "{double_spend,unknown_input}", s.String())
	assert.True(t, types.ReasonSet(0).IsEmpty())
}

func TestRunOutcomeRecord(t *testing.T) {
	rec := &types.RunOutcome{
		Seq:       12,
		RunID:     "run-1",
		Iteration: 3,
		Height:    4,
		TxHash:    types.Sum([]byte("tx")),
		Strategy:  "double_spend",
		Outcome:   types.Accepted(),
		Violations: []types.Violation{
			{Kind: types.ViolationDoubleAccept, Severity: types.SeverityFinding, Detail: "input consumed"},
			{Kind: types.ViolationReasonMismatch, Severity: types.SeverityWarning},
		},
		RawTx: []byte{1, 2},
	}

	var decoded types.RunOutcome
	require.NoError(t, decoded.Unmarshal(rec.Marshal()))
	assert.Equal(t, rec, &decoded)
	assert.True(t, decoded.HasFinding())
}
