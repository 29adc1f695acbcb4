package service

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/audit"
	"github.com/inzo/orchestrator-go/internal/config"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/gateway"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/util"
)

// ClaimOutcome is the result of a Continue call. Pending is not an error: the
// oracle has not decided yet and the claim can be checked again later.
type ClaimOutcome string

const (
	ClaimOutcomePaid     ClaimOutcome = "paid"
	ClaimOutcomeRejected ClaimOutcome = "rejected"
	ClaimOutcomePending  ClaimOutcome = "pending"
)

type ClaimService struct {
	Deps
	sleep func(time.Duration)
}

func NewClaimService(d Deps) *ClaimService {
	return &ClaimService{Deps: d, sleep: time.Sleep}
}

// File checks eligibility and asks the user to describe the incident. Nothing
// is created on the ledger or with the conversation provider here.
func (s *ClaimService) File(ctx context.Context, user model.UserID, policyID uint64) error {
	kyc, err := s.requireVerified(ctx, user, "file a claim")
	if err != nil {
		return err
	}
	if _, err := s.activePolicy(ctx, policyID, kyc.WalletAddress); err != nil {
		return err
	}

	if err := s.Store.PutExpectedInput(ctx, &model.ExpectedInput{
		UserID:    user,
		Kind:      model.InputKindClaimDescription,
		PolicyID:  policyID,
		CreatedAt: time.Now(),
	}); err != nil {
		return apperrors.Database(err)
	}

	s.Audit.Record(ctx, audit.Event{Type: audit.EventClaimFiled, UserID: string(user), PolicyID: policyID})
	s.notifyf(ctx, user, "Filing a claim for policy %d. Please describe what happened to the insured asset in a single message.", policyID)
	return nil
}

func (s *ClaimService) activePolicy(ctx context.Context, policyID uint64, wallet string) (*model.Policy, error) {
	policy, err := s.ownedPolicy(ctx, policyID, wallet)
	if err != nil {
		return nil, err
	}
	if policy.Status != model.PolicyStatusActive {
		return nil, apperrors.Precondition(fmt.Sprintf(
			"Claims can only be filed for Active policies. Policy %d is %s.", policyID, policy.Status))
	}
	return policy, nil
}

// SubmitDescription stores the claim and opens the investigation
// conversation. The policy moves to ClaimUnderReview only once the
// conversation exists.
func (s *ClaimService) SubmitDescription(ctx context.Context, user model.UserID, policyID uint64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.InvalidInput("Please describe the incident in a message.")
	}

	kyc, err := s.requireVerified(ctx, user, "file a claim")
	if err != nil {
		return err
	}
	policy, err := s.activePolicy(ctx, policyID, kyc.WalletAddress)
	if err != nil {
		s.clearExpected(ctx, user)
		return err
	}

	claim := &model.ClaimSession{
		UserID:      user,
		PolicyID:    policyID,
		Description: text,
		CreatedAt:   time.Now(),
	}
	if err := s.Store.PutClaim(ctx, claim); err != nil {
		return apperrors.Database(err)
	}
	s.clearExpected(ctx, user)

	convContext := fmt.Sprintf(
		"You are an AI claim investigator for Inzo Insurance. Policy details: Asset: %s, Coverage: %s %s, Premium: %s %s, Risk Tier: %s. "+
			"The policyholder reports: %q. Ask questions to understand the incident, the damage and its circumstances.",
		policy.AssetIdentifier,
		util.FormatUnits(policy.CoverageAmount), s.Settings.TokenSymbol,
		util.FormatUnits(policy.PremiumAmount), s.Settings.TokenSymbol,
		policy.RiskTier, text)
	name := fmt.Sprintf("Inzo Claim - Policy %d - User %s - %d", policyID, user, time.Now().Unix())

	conv, err := s.Conversations.CreateConversation(ctx, s.Settings.ReplicaClaim, name, convContext)
	if err != nil {
		log.Error().Err(err).Str("userId", string(user)).Uint64("policyId", policyID).Msg("failed to create claim conversation")
		return apperrors.External("Could not set up your claim investigation. Please try again later.", err)
	}

	claim.ConversationID = conv.ID
	claim.ConversationURL = conv.URL
	if err := s.Store.PutClaim(ctx, claim); err != nil {
		return apperrors.Database(err)
	}

	if err := s.Ledger.UpdatePolicyStatus(ctx, policyID, model.PolicyStatusClaimUnderReview); err != nil {
		log.Error().Err(err).Str("userId", string(user)).Uint64("policyId", policyID).Msg("failed to mark policy under review")
		return apperrors.External("Could not record your claim on the ledger. Please try again later.", err)
	}

	s.Audit.Record(ctx, audit.Event{
		Type:     audit.EventClaimSubmitted,
		UserID:   string(user),
		PolicyID: policyID,
		Details:  map[string]interface{}{"conversationId": conv.ID},
	})
	s.notifyf(ctx, user,
		"Your claim for policy %d is under review. Please join the investigation conversation:\n%s\n\nWhen it is finished send /continue_claim %d %s",
		policyID, conv.URL, policyID, conv.ID)
	return nil
}

func (s *ClaimService) clearExpected(ctx context.Context, user model.UserID) {
	if err := s.Store.DeleteExpectedInput(ctx, user); err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to clear expected input")
	}
}

// Continue submits the claim to the oracle and waits for its decision on the
// ledger. Once submitted, polling and settlement ignore ctx's cancellation and
// deadline and run under decisionBudget instead.
func (s *ClaimService) Continue(ctx context.Context, user model.UserID, policyID uint64, conversationID string) (ClaimOutcome, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return "", apperrors.InvalidInput("Usage: /continue_claim <policy_id> <conversation_id>")
	}

	claim, err := s.Store.GetClaim(ctx, user, policyID)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if claim == nil {
		return "", apperrors.NotFound(fmt.Sprintf("No open claim was found for policy %d. Use /file_claim %d first.", policyID, policyID))
	}
	if claim.ConversationID == "" || claim.ConversationID != conversationID {
		log.Warn().Str("userId", string(user)).Uint64("policyId", policyID).Str("conversationId", util.MaskID(conversationID)).Msg("claim conversation mismatch")
		return "", apperrors.Precondition("That conversation id does not match your claim. Please check the id and try again.")
	}

	caseID := util.DeriveCaseID(conversationID)
	logger := log.With().Str("userId", string(user)).Uint64("policyId", policyID).Str("caseId", caseID.String()).Logger()

	ack, err := s.Oracle.SubmitCase(ctx, gateway.CaseRequest{
		PolicyID:       strconv.FormatUint(policyID, 10),
		CaseID:         caseID.String(),
		ConversationID: conversationID,
		UserID:         string(user),
		ClaimDetails:   gateway.ClaimDetails{Description: claim.Description},
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to submit claim case")
		return "", apperrors.External("Could not submit your claim for a decision. Please try /continue_claim again later.", err)
	}
	logger.Info().Int("ackBytes", len(ack)).Msg("claim case submitted")

	claim.CaseID = caseID.String()
	claim.SubmittedAt = time.Now()
	if err := s.Store.PutClaim(ctx, claim); err != nil {
		logger.Warn().Err(err).Msg("failed to record claim submission")
	}

	s.notifyf(ctx, user, "Your claim has been submitted for a decision (case %s). Waiting for the result...", caseID.String())

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.decisionBudget())
	defer cancel()
	decision := s.pollDecision(ctx, policyID, caseID)
	if !decision.Decided() {
		s.Audit.Record(ctx, audit.Event{
			Type:     audit.EventClaimPending,
			UserID:   string(user),
			PolicyID: policyID,
			Details:  map[string]interface{}{"caseId": caseID.String()},
		})
		s.notifyf(ctx, user,
			"Your claim is still being processed (case %s). Check again later with /continue_claim %d %s",
			caseID.String(), policyID, conversationID)
		return ClaimOutcomePending, nil
	}

	return s.settle(ctx, claim, caseID, decision)
}

// decisionBudget bounds polling and settlement once a case is submitted.
func (s *ClaimService) decisionBudget() time.Duration {
	return time.Duration(s.Settings.PollMaxAttempts)*s.Settings.PollInterval + config.ClaimSettleTimeout
}

// pollDecision reads the decision up to PollMaxAttempts times, sleeping before
// each read. Read errors use up an attempt.
func (s *ClaimService) pollDecision(ctx context.Context, policyID uint64, caseID *big.Int) *model.Decision {
	for attempt := 1; attempt <= s.Settings.PollMaxAttempts; attempt++ {
		s.sleep(s.Settings.PollInterval)

		decision, err := s.Ledger.GetDecision(ctx, policyID, caseID)
		if err != nil {
			log.Warn().Err(err).Uint64("policyId", policyID).Str("caseId", caseID.String()).Int("attempt", attempt).Msg("failed to read claim decision")
			continue
		}
		if decision.Decided() {
			return decision
		}
		log.Debug().Uint64("policyId", policyID).Str("caseId", caseID.String()).Int("attempt", attempt).Msg("claim decision not ready")
	}
	return nil
}

// settle applies a decision. The claim session is deleted only after the final
// status write succeeds.
func (s *ClaimService) settle(ctx context.Context, claim *model.ClaimSession, caseID *big.Int, decision *model.Decision) (ClaimOutcome, error) {
	user, policyID := claim.UserID, claim.PolicyID

	fail := func(step string, cause error) (ClaimOutcome, error) {
		log.Error().Err(cause).Str("userId", string(user)).Uint64("policyId", policyID).
			Str("caseId", caseID.String()).Str("failedStep", step).Msg("claim settlement failed")
		s.Audit.Record(ctx, audit.Event{
			Type:     audit.EventClaimSettlementFailed,
			UserID:   string(user),
			PolicyID: policyID,
			Details: map[string]interface{}{
				"caseId":     caseID.String(),
				"failedStep": step,
				"approved":   decision.Approved,
			},
		})
		return "", apperrors.External("Your claim was decided but settling it failed. Our team has been notified and will follow up.", cause)
	}

	if !decision.Approved {
		if err := s.Ledger.UpdatePolicyStatus(ctx, policyID, model.PolicyStatusClaimRejected); err != nil {
			return fail("mark_rejected", err)
		}
		s.dropClaim(ctx, user, policyID)
		s.Audit.Record(ctx, audit.Event{
			Type:     audit.EventClaimRejected,
			UserID:   string(user),
			PolicyID: policyID,
			Details:  map[string]interface{}{"caseId": caseID.String()},
		})
		s.notifyf(ctx, user, "We're sorry, your claim for policy %d was rejected.", policyID)
		return ClaimOutcomeRejected, nil
	}

	policy, err := s.Ledger.GetPolicy(ctx, policyID)
	if err != nil {
		return fail("read_policy", err)
	}
	if policy == nil {
		return fail("read_policy", fmt.Errorf("policy %d not found", policyID))
	}

	payout := decision.PayoutAmount
	if payout != nil && payout.Sign() > 0 {
		if err := s.Ledger.PayOut(ctx, policyID, policy.Holder, payout); err != nil {
			return fail("pay_out", err)
		}
	} else {
		log.Warn().Uint64("policyId", policyID).Str("caseId", caseID.String()).Msg("approved claim carries no payout")
	}

	if err := s.Ledger.UpdatePolicyStatus(ctx, policyID, model.PolicyStatusClaimPaid); err != nil {
		return fail("mark_paid", err)
	}
	s.dropClaim(ctx, user, policyID)

	s.Audit.Record(ctx, audit.Event{
		Type:     audit.EventClaimPaid,
		UserID:   string(user),
		PolicyID: policyID,
		Details: map[string]interface{}{
			"caseId": caseID.String(),
			"payout": util.FormatUnits(payout),
		},
	})
	s.notifyf(ctx, user, "Good news! Your claim for policy %d was approved. %s %s has been paid to your wallet.",
		policyID, util.FormatUnits(payout), s.Settings.TokenSymbol)
	return ClaimOutcomePaid, nil
}

func (s *ClaimService) dropClaim(ctx context.Context, user model.UserID, policyID uint64) {
	if err := s.Store.DeleteClaim(ctx, user, policyID); err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Uint64("policyId", policyID).Msg("failed to delete settled claim session")
	}
}
