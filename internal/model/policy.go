package model

import (
	"math/big"
	"time"
)

// Policy is the ledger's record as seen by the orchestrator. It is read-only
// here; status changes go through the ledger gateway.
type Policy struct {
	ID              uint64
	Holder          string
	Status          PolicyStatus
	CoverageAmount  *big.Int
	PremiumAmount   *big.Int
	LastPremiumPaid time.Time
	RiskTier        RiskTier
	AssetIdentifier string
	StartDate       time.Time
	EndDate         time.Time
	DetailsHash     [32]byte
}

// PolicyDraft is a policy-creation request.
type PolicyDraft struct {
	Holder          string
	RiskTier        RiskTier
	PremiumAmount   *big.Int
	CoverageAmount  *big.Int
	StartDate       time.Time
	EndDate         time.Time
	AssetIdentifier string
	DetailsHash     [32]byte
}

// Decision is the oracle's verdict as recorded on the ledger. A zero
// Timestamp means no decision has landed yet.
type Decision struct {
	Timestamp    uint64
	Approved     bool
	PayoutAmount *big.Int
}

func (d *Decision) Decided() bool {
	return d != nil && d.Timestamp != 0
}
