package generator

import (
	"fmt"

	"github.com/cellfuzz/txpoolfuzz/types"
)

// Expectation is what the generator predicts the engine will answer.
type Expectation uint8

const (
	// ExpectAny makes no prediction.
	ExpectAny Expectation = iota
	// ExpectAccept predicts acceptance, provided every parent was accepted.
	ExpectAccept
	// ExpectReject predicts rejection with one of the expected reasons.
	ExpectReject
)

func (e Expectation) String() string {
	switch e {
	case ExpectAccept:
		return "must_accept"
	case ExpectReject:
		return "must_reject"
	}
	return "any"
}

// Candidate is a generated transaction together with the verdict it was
// built to provoke.
type Candidate struct {
	// Index is the position of the candidate in its batch.
	Index    int
	Tx       *types.Transaction
	Strategy Strategy

	Expect          Expectation
	ExpectedReasons types.ReasonSet

	// Parents are the batch indices of the candidates whose outputs Tx
	// spends.
	Parents []int
	// Conflicts are the batch indices of the candidates that spend an input
	// Tx also spends. A rejection expected because of a conflict only holds
	// if the conflicting candidate was accepted.
	Conflicts []int

	hash   types.Hash
	inputs []spendable
	fee    uint64
}

// Hash returns the hash of Tx.
func (c *Candidate) Hash() types.Hash {
	return c.hash
}

func (c *Candidate) String() string {
	return fmt.Sprintf("Candidate{#%d %s %s %v %v}", c.Index, c.Strategy, c.hash.Short(), c.Expect, c.ExpectedReasons)
}

// NewCandidate wraps a transaction built outside a batch. Without reasons it
// is expected to be accepted.
func NewCandidate(index int, tx *types.Transaction, s Strategy, reasons ...types.RejectReason) *Candidate {
	c := &Candidate{Index: index, Tx: tx, Strategy: s, Expect: ExpectAccept, hash: tx.Hash()}
	if len(reasons) > 0 {
		c.Expect = ExpectReject
		c.ExpectedReasons = types.NewReasonSet(reasons...)
	}
	return c
}
