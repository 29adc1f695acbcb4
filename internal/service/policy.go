package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/audit"
	"github.com/inzo/orchestrator-go/internal/config"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/util"
)

// PolicyQuestions are asked in order; answers are asset, coverage and reason.
var PolicyQuestions = []string{
	"What asset would you like to insure? (e.g., MacBook Pro 16-inch 2023, iPhone 15 Pro)",
	"What is the desired coverage amount in InzoUSD? (e.g., 1500)",
	"Briefly, what is the primary reason you are seeking insurance for this asset?",
}

const (
	answerAsset = iota
	answerCoverage
	answerReason
)

type PolicyService struct {
	Deps
	now func() time.Time
}

func NewPolicyService(d Deps) *PolicyService {
	return &PolicyService{Deps: d, now: time.Now}
}

// Apply starts a fresh application, replacing any unfinished one.
func (s *PolicyService) Apply(ctx context.Context, user model.UserID) error {
	if _, err := s.requireVerified(ctx, user, "apply for a policy"); err != nil {
		return err
	}

	app := model.NewPolicyApplication(user)
	if err := s.Store.PutApplication(ctx, app); err != nil {
		return apperrors.Database(err)
	}
	if err := s.Store.PutExpectedInput(ctx, &model.ExpectedInput{
		UserID:    user,
		Kind:      model.InputKindPolicyAnswer,
		CreatedAt: time.Now(),
	}); err != nil {
		return apperrors.Database(err)
	}

	s.notifyf(ctx, user, "Let's get your policy application started. Please reply to each question.\n\n1/%d: %s",
		len(PolicyQuestions), PolicyQuestions[0])
	return nil
}

// Answer records the next answer. After the last one it opens the
// underwriting conversation. Coverage is validated only at completion.
func (s *PolicyService) Answer(ctx context.Context, user model.UserID, text string) error {
	app, err := s.Store.GetApplication(ctx, user)
	if err != nil {
		return apperrors.Database(err)
	}
	if app == nil || app.Status != model.ApplicationStatusPendingQuestions {
		if err := s.Store.DeleteExpectedInput(ctx, user); err != nil {
			log.Warn().Err(err).Str("userId", string(user)).Msg("failed to clear stale expected input")
		}
		return apperrors.Precondition("You have no policy questions open. Use /apply_policy to start an application.")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.InvalidInput(fmt.Sprintf("Please answer the question:\n%s", PolicyQuestions[app.Step()]))
	}
	if err := app.Answer(text, len(PolicyQuestions)); err != nil {
		return apperrors.Precondition("Your answers are already complete.")
	}

	if app.Step() < len(PolicyQuestions) {
		if err := s.Store.PutApplication(ctx, app); err != nil {
			return apperrors.Database(err)
		}
		s.notifyf(ctx, user, "%d/%d: %s", app.Step()+1, len(PolicyQuestions), PolicyQuestions[app.Step()])
		return nil
	}

	app.Status = model.ApplicationStatusPendingConversation
	if err := s.Store.PutApplication(ctx, app); err != nil {
		return apperrors.Database(err)
	}
	if err := s.Store.DeleteExpectedInput(ctx, user); err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to clear expected input")
	}

	s.notify(ctx, user, "Thanks! Setting up a short conversation with our underwriting agent...")
	return s.openUnderwriting(ctx, app)
}

func (s *PolicyService) openUnderwriting(ctx context.Context, app *model.PolicyApplication) error {
	user := app.UserID
	asset := app.Answers[answerAsset]
	coverage := app.Answers[answerCoverage]
	reason := app.Answers[answerReason]

	convContext := fmt.Sprintf(
		"You are an AI insurance agent for Inzo Insurance. User wants to insure: %s, Desired Coverage: %s %s, Reason: %s. "+
			"Ask clarifying questions about the asset's condition and usage to assess the risk, then wrap up politely.",
		asset, coverage, s.Settings.TokenSymbol, reason)
	name := fmt.Sprintf("Inzo Policy App - User %s - %d", user, time.Now().Unix())

	conv, err := s.Conversations.CreateConversation(ctx, s.Settings.ReplicaPolicy, name, convContext)
	if err != nil {
		log.Error().Err(err).Str("userId", string(user)).Msg("failed to create underwriting conversation")
		s.discard(ctx, user)
		return apperrors.External("Could not set up your underwriting conversation. Please start over with /apply_policy.", err)
	}

	app.ConversationID = conv.ID
	app.ConversationURL = conv.URL
	if err := s.Store.PutApplication(ctx, app); err != nil {
		return apperrors.Database(err)
	}

	s.notifyf(ctx, user,
		"Please join the conversation with our underwriting agent:\n%s\n\nWhen it is finished send /complete_policy_application %s",
		conv.URL, conv.ID)
	return nil
}

// Complete turns a finished application into a ledger policy. The application
// is deleted whatever the outcome; a failed one must be restarted.
func (s *PolicyService) Complete(ctx context.Context, user model.UserID, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return apperrors.InvalidInput("Usage: /complete_policy_application <conversation_id>")
	}

	kyc, err := s.requireVerified(ctx, user, "complete a policy application")
	if err != nil {
		return err
	}

	app, err := s.Store.GetApplication(ctx, user)
	if err != nil {
		return apperrors.Database(err)
	}
	if app == nil || app.Status != model.ApplicationStatusPendingConversation {
		return apperrors.Precondition("There is no policy application waiting for completion. Use /apply_policy to start one.")
	}
	if app.ConversationID != conversationID {
		log.Warn().Str("userId", string(user)).Str("conversationId", util.MaskID(conversationID)).Msg("policy application conversation mismatch")
		return apperrors.Precondition("That conversation id does not match your policy application. Please check the id and try again.")
	}

	app.Status = model.ApplicationStatusConversationDone
	if err := s.Store.PutApplication(ctx, app); err != nil {
		return apperrors.Database(err)
	}
	defer s.discard(ctx, user)

	asset := app.Answers[answerAsset]
	coverageText := strings.TrimSpace(app.Answers[answerCoverage])
	coverage, err := util.ParsePositiveUnits(coverageText)
	if err != nil {
		return apperrors.InvalidInput(fmt.Sprintf(
			"The coverage amount %q is not a valid positive number. Please start over with /apply_policy.", coverageText))
	}

	premium := util.Percent(coverage, config.PremiumPercent)
	if premium.Sign() == 0 {
		return apperrors.InvalidInput(fmt.Sprintf(
			"The coverage amount %s %s is too small to carry a premium. Please start over with /apply_policy.",
			util.FormatUnits(coverage), s.Settings.TokenSymbol))
	}

	start := s.now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 0, config.PolicyTermDays)
	terms := fmt.Sprintf("Policy terms for %s with coverage %s %s, Start: %d, End: %d",
		asset, util.FormatUnits(coverage), s.Settings.TokenSymbol, start.Unix(), end.Unix())

	draft := model.PolicyDraft{
		Holder:          kyc.WalletAddress,
		RiskTier:        config.DefaultRiskTier,
		PremiumAmount:   premium,
		CoverageAmount:  coverage,
		StartDate:       start,
		EndDate:         end,
		AssetIdentifier: asset,
		DetailsHash:     util.TextID(terms),
	}

	s.notify(ctx, user, "Creating your policy on the ledger. This can take a minute...")
	policyID, err := s.Ledger.CreatePolicy(ctx, draft)
	if err != nil {
		log.Error().Err(err).Str("userId", string(user)).Msg("failed to create policy")
		return apperrors.External("Could not create your policy on the ledger. Please start over with /apply_policy.", err)
	}

	s.Audit.Record(ctx, audit.Event{
		Type:     audit.EventPolicyCreated,
		UserID:   string(user),
		PolicyID: policyID,
		Details: map[string]interface{}{
			"asset":    asset,
			"coverage": util.FormatUnits(draft.CoverageAmount),
			"premium":  util.FormatUnits(draft.PremiumAmount),
		},
	})
	s.notifyf(ctx, user,
		"Policy created!\nPolicy ID: %d\nAsset: %s\nCoverage: %s %s\nPremium: %s %s\n\nActivate it with /pay_premium %d",
		policyID, asset,
		util.FormatUnits(draft.CoverageAmount), s.Settings.TokenSymbol,
		util.FormatUnits(draft.PremiumAmount), s.Settings.TokenSymbol,
		policyID)
	return nil
}

func (s *PolicyService) discard(ctx context.Context, user model.UserID) {
	if err := s.Store.DeleteApplication(ctx, user); err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to delete policy application")
	}
	if err := s.Store.DeleteExpectedInput(ctx, user); err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to clear expected input")
	}
}

// List shows every policy held by the user's wallet with the next action for
// each.
func (s *PolicyService) List(ctx context.Context, user model.UserID) error {
	kyc, err := s.requireVerified(ctx, user, "view policies")
	if err != nil {
		return err
	}

	ids, err := s.Ledger.ListPolicyIDs(ctx, kyc.WalletAddress)
	if err != nil {
		return apperrors.External("Could not read your policies from the ledger. Please try again later.", err)
	}
	if len(ids) == 0 {
		s.notify(ctx, user, "You have no policies yet. Use /apply_policy to get started.")
		return nil
	}

	var b strings.Builder
	b.WriteString("Your policies:\n")
	for _, id := range ids {
		policy, err := s.Ledger.GetPolicy(ctx, id)
		if err != nil || policy == nil {
			log.Warn().Err(err).Uint64("policyId", id).Msg("failed to read listed policy")
			fmt.Fprintf(&b, "\nPolicy ID: %d (details unavailable)\n", id)
			continue
		}
		fmt.Fprintf(&b, "\nPolicy ID: %d\nAsset: %s\nStatus: %s\nCoverage: %s %s\nView details: /view_policy %d\n",
			policy.ID, policy.AssetIdentifier, policy.Status,
			util.FormatUnits(policy.CoverageAmount), s.Settings.TokenSymbol, policy.ID)
		if action := nextAction(policy); action != "" {
			b.WriteString(action + "\n")
		}
	}
	s.notify(ctx, user, b.String())
	return nil
}

// View shows one policy in full.
func (s *PolicyService) View(ctx context.Context, user model.UserID, policyID uint64) error {
	kyc, err := s.requireVerified(ctx, user, "view policies")
	if err != nil {
		return err
	}
	policy, err := s.ownedPolicy(ctx, policyID, kyc.WalletAddress)
	if err != nil {
		return err
	}

	const dateLayout = "2006-01-02"
	var b strings.Builder
	fmt.Fprintf(&b, "Policy ID: %d\nAsset: %s\nStatus: %s\nCoverage: %s %s\nPremium: %s %s\nRisk Tier: %s\nStart: %s\nEnd: %s\n",
		policy.ID, policy.AssetIdentifier, policy.Status,
		util.FormatUnits(policy.CoverageAmount), s.Settings.TokenSymbol,
		util.FormatUnits(policy.PremiumAmount), s.Settings.TokenSymbol,
		policy.RiskTier,
		policy.StartDate.UTC().Format(dateLayout), policy.EndDate.UTC().Format(dateLayout))
	if !policy.LastPremiumPaid.IsZero() {
		fmt.Fprintf(&b, "Last premium paid: %s\n", policy.LastPremiumPaid.UTC().Format(dateLayout))
	}
	fmt.Fprintf(&b, "Terms hash: 0x%x\n", policy.DetailsHash)
	if action := nextAction(policy); action != "" {
		b.WriteString("\n" + action)
	}
	s.notify(ctx, user, b.String())
	return nil
}

func nextAction(p *model.Policy) string {
	switch p.Status {
	case model.PolicyStatusPendingApplication:
		return fmt.Sprintf("Pay premium: /pay_premium %d", p.ID)
	case model.PolicyStatusActive:
		return fmt.Sprintf("File claim: /file_claim %d", p.ID)
	default:
		return ""
	}
}
