package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/inzo/orchestrator-go/internal/model"
)

// policyInput matches the createPolicy tuple. Field names follow the ABI
// component names.
type policyInput struct {
	PolicyHolder      common.Address
	RiskTier          uint8
	PremiumAmount     *big.Int
	CoverageAmount    *big.Int
	StartDate         *big.Int
	EndDate           *big.Int
	AssetIdentifier   string
	PolicyDetailsHash [32]byte
}

// claimDecision matches the getClaimDecision tuple.
type claimDecision struct {
	PolicyId     *big.Int
	ClaimId      *big.Int
	IsApproved   bool
	PayoutAmount *big.Int
	Timestamp    *big.Int
}

func newPolicyInput(d model.PolicyDraft) policyInput {
	return policyInput{
		PolicyHolder:      common.HexToAddress(d.Holder),
		RiskTier:          uint8(d.RiskTier),
		PremiumAmount:     d.PremiumAmount,
		CoverageAmount:    d.CoverageAmount,
		StartDate:         big.NewInt(d.StartDate.Unix()),
		EndDate:           big.NewInt(d.EndDate.Unix()),
		AssetIdentifier:   d.AssetIdentifier,
		PolicyDetailsHash: d.DetailsHash,
	}
}

func (d claimDecision) toModel() *model.Decision {
	out := &model.Decision{
		Approved:     d.IsApproved,
		PayoutAmount: d.PayoutAmount,
	}
	if d.Timestamp != nil && d.Timestamp.IsUint64() {
		out.Timestamp = d.Timestamp.Uint64()
	}
	if out.PayoutAmount == nil {
		out.PayoutAmount = new(big.Int)
	}
	return out
}

// unixTime converts a ledger timestamp; zero stays the zero time.
func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
