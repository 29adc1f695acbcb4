package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/audit"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/util"
)

type PremiumService struct {
	Deps
}

func NewPremiumService(d Deps) *PremiumService {
	return &PremiumService{Deps: d}
}

// Pay collects the premium of a pending policy from the holder's custodial
// wallet and activates it. The three writes run in order, each mined before
// the next; there is no rollback, and a leftover approval is reused by a
// retry.
func (s *PremiumService) Pay(ctx context.Context, user model.UserID, policyID uint64) error {
	kyc, err := s.Store.GetKYC(ctx, user)
	if err != nil {
		return apperrors.Database(err)
	}
	if !kyc.HasWallet() {
		return apperrors.Precondition("You need a custodial wallet to pay premiums. Complete KYC with /kyc first.")
	}

	policy, err := s.ownedPolicy(ctx, policyID, kyc.WalletAddress)
	if err != nil {
		return err
	}
	if policy.Status != model.PolicyStatusPendingApplication {
		return apperrors.Precondition(fmt.Sprintf(
			"Policy %d is %s; a premium can only be paid for a policy pending application.", policyID, policy.Status))
	}

	premium := policy.PremiumAmount
	if premium == nil || premium.Sign() <= 0 {
		return apperrors.Precondition(fmt.Sprintf("Policy %d has no premium to pay.", policyID))
	}

	balance, err := s.Ledger.TokenBalance(ctx, kyc.WalletAddress)
	if err != nil {
		return apperrors.External("Could not read your token balance. Please try again later.", err)
	}
	if balance.Cmp(premium) < 0 {
		return apperrors.Precondition(fmt.Sprintf("Insufficient balance: the premium is %s %s but your wallet holds %s %s.",
			util.FormatUnits(premium), s.Settings.TokenSymbol, util.FormatUnits(balance), s.Settings.TokenSymbol))
	}

	gas, err := s.Ledger.GasBalance(ctx, kyc.WalletAddress)
	if err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to read gas balance")
	} else if gas.Cmp(s.Settings.PremiumGasThreshold) < 0 {
		s.notifyf(ctx, user,
			"Warning: your wallet has only %s %s for network fees (recommended at least %s). The payment may fail.",
			util.FormatUnits(gas), s.Settings.GasSymbol, util.FormatUnits(s.Settings.PremiumGasThreshold))
	}

	s.notifyf(ctx, user, "Paying the premium of %s %s for policy %d. This can take a minute...",
		util.FormatUnits(premium), s.Settings.TokenSymbol, policyID)

	var completed []string
	fail := func(step string, cause error) error {
		log.Error().Err(cause).Str("userId", string(user)).Uint64("policyId", policyID).
			Str("failedStep", step).Strs("completedSteps", completed).Msg("premium payment failed")
		if len(completed) > 0 {
			s.Audit.Record(ctx, audit.Event{
				Type:     audit.EventPremiumPartial,
				UserID:   string(user),
				PolicyID: policyID,
				Details: map[string]interface{}{
					"failedStep":     step,
					"completedSteps": completed,
				},
			})
		}
		return apperrors.External(fmt.Sprintf(
			"The premium payment for policy %d did not complete. You can retry with /pay_premium %d.", policyID, policyID), cause)
	}

	if err := s.Ledger.ApproveFund(ctx, kyc.WalletSecret, premium); err != nil {
		return fail("approve_fund", err)
	}
	completed = append(completed, "approve_fund")

	if err := s.Ledger.CollectPremium(ctx, policyID, kyc.WalletAddress, premium); err != nil {
		return fail("collect_premium", err)
	}
	completed = append(completed, "collect_premium")

	if err := s.Ledger.UpdatePolicyStatus(ctx, policyID, model.PolicyStatusActive); err != nil {
		return fail("activate_policy", err)
	}

	s.Audit.Record(ctx, audit.Event{
		Type:     audit.EventPremiumPaid,
		UserID:   string(user),
		PolicyID: policyID,
		Details:  map[string]interface{}{"premium": util.FormatUnits(premium)},
	})
	s.notifyf(ctx, user, "Premium paid. Policy %d is now Active.\nIf something happens to your asset, use /file_claim %d.",
		policyID, policyID)
	return nil
}
