package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/audit"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/gateway"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/util"
)

const kycInterviewContext = "You are an AI assistant for Inzo Insurance conducting a brief KYC (Know Your Customer) " +
	"follow-up interview. The user has passed document verification. Ask them to confirm their full name, " +
	"the country they live in, and the purpose of opening an insurance account. Be polite and concise."

type KYCService struct {
	Deps
}

func NewKYCService(d Deps) *KYCService {
	return &KYCService{Deps: d}
}

// Start opens a new identity inquiry, discarding any in-flight KYC sub-state.
// A verified user is only shown their wallet.
func (s *KYCService) Start(ctx context.Context, user model.UserID) error {
	current, err := s.Store.GetKYC(ctx, user)
	if err != nil {
		return apperrors.Database(err)
	}
	if current.Verified() {
		s.notifyf(ctx, user, "Your KYC is already complete.\nInzo Wallet: %s\nUse /my_wallet to see your balances.", current.WalletAddress)
		return nil
	}

	session := model.NewKYCSession(user)
	// A wallet provisioned by an earlier failed setup is kept so funds sent to
	// it stay reachable.
	if current.HasWallet() {
		session.WalletAddress = current.WalletAddress
		session.WalletSecret = current.WalletSecret
	}
	if err := s.Store.PutKYC(ctx, session); err != nil {
		return apperrors.Database(err)
	}

	inquiryID, err := s.Identity.CreateInquiry(ctx, "chat-"+string(user))
	if err != nil {
		log.Error().Err(err).Str("userId", string(user)).Msg("failed to create identity inquiry")
		return apperrors.External("Could not start identity verification right now. Please try /kyc again later.", err)
	}
	link, err := s.Identity.GenerateAccessLink(ctx, inquiryID)
	if err != nil {
		log.Error().Err(err).Str("userId", string(user)).Str("inquiryId", util.MaskID(inquiryID)).Msg("failed to generate inquiry link")
		return apperrors.External("Could not create your verification link. Please try /kyc again later.", err)
	}

	session.InquiryID = inquiryID
	session.Status = model.KYCStatusPendingDocCompletion
	session.UpdatedAt = time.Now()
	if err := s.Store.PutKYC(ctx, session); err != nil {
		return apperrors.Database(err)
	}

	s.Audit.Record(ctx, audit.Event{
		Type:    audit.EventKYCStarted,
		UserID:  string(user),
		Details: map[string]interface{}{"inquiryId": inquiryID},
	})
	s.notifyf(ctx, user,
		"Let's verify your identity. Open this one-time link to upload your documents:\n%s\n\nWhen you are done, send /next_doc_verification_step.",
		link)
	return nil
}

// CheckStatus advances the document step, and from doc_passed opens the KYC
// interview.
func (s *KYCService) CheckStatus(ctx context.Context, user model.UserID) error {
	session, err := s.Store.GetKYC(ctx, user)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return apperrors.Precondition("You have not started KYC yet. Use /kyc to begin.")
	}

	switch session.Status {
	case model.KYCStatusPendingDocCompletion:
		return s.checkDocuments(ctx, session)
	case model.KYCStatusDocPassed:
		return s.openInterview(ctx, session)
	case model.KYCStatusPendingInterview:
		s.notifyf(ctx, user,
			"Your KYC interview is already open:\n%s\n\nAfter the interview send /complete_kyc_interview %s",
			session.ConversationURL, session.ConversationID)
		return nil
	case model.KYCStatusVerifiedOnChain:
		s.notifyf(ctx, user, "Your KYC is already complete.\nInzo Wallet: %s", session.WalletAddress)
		return nil
	default:
		return apperrors.Precondition(fmt.Sprintf("Your KYC is in state %q and cannot advance with this command. Use /kyc to restart.", session.Status))
	}
}

func (s *KYCService) checkDocuments(ctx context.Context, session *model.KYCSession) error {
	user := session.UserID
	status, err := s.Identity.GetStatus(ctx, session.InquiryID)
	if err != nil {
		log.Error().Err(err).Str("userId", string(user)).Str("inquiryId", util.MaskID(session.InquiryID)).Msg("failed to read inquiry status")
		return apperrors.External("Could not check your document verification right now. Please try again shortly.", err)
	}

	switch status {
	case gateway.InquiryCompleted:
		session.Status = model.KYCStatusDocPassed
		session.UpdatedAt = time.Now()
		if err := s.Store.PutKYC(ctx, session); err != nil {
			return apperrors.Database(err)
		}
		s.notify(ctx, user, "Document verification passed. Setting up your KYC interview...")
		return s.openInterview(ctx, session)
	case gateway.InquiryCreated, gateway.InquiryPending, gateway.InquiryNeedsReview:
		s.notifyf(ctx, user,
			"Your document verification is still in progress (status: %s). Please try /next_doc_verification_step again in a few minutes.",
			status)
		return nil
	default:
		session.Status = model.KYCStatusDocFailed
		session.UpdatedAt = time.Now()
		if err := s.Store.PutKYC(ctx, session); err != nil {
			return apperrors.Database(err)
		}
		log.Info().Str("userId", string(user)).Str("inquiryId", util.MaskID(session.InquiryID)).Str("inquiryStatus", status).Msg("document verification failed")
		s.notifyf(ctx, user, "Document verification did not pass (status: %s). Use /kyc to start again.", status)
		return nil
	}
}

// openInterview uses the session's single conversation slot. Once a
// conversation id is stored, it is re-sent instead of creating another one.
func (s *KYCService) openInterview(ctx context.Context, session *model.KYCSession) error {
	user := session.UserID
	if session.ConversationID == "" {
		name := fmt.Sprintf("Inzo KYC Interview - User %s - %d", user, time.Now().Unix())
		conv, err := s.Conversations.CreateConversation(ctx, s.Settings.ReplicaKYC, name, kycInterviewContext)
		if err != nil {
			log.Error().Err(err).Str("userId", string(user)).Msg("failed to create KYC interview conversation")
			return apperrors.External("Could not set up your KYC interview. Please try /next_doc_verification_step again.", err)
		}
		session.ConversationID = conv.ID
		session.ConversationURL = conv.URL
	}

	session.Status = model.KYCStatusPendingInterview
	session.UpdatedAt = time.Now()
	if err := s.Store.PutKYC(ctx, session); err != nil {
		return apperrors.Database(err)
	}

	s.notifyf(ctx, user,
		"Please join your short KYC interview:\n%s\n\nAfter the interview send /complete_kyc_interview %s",
		session.ConversationURL, session.ConversationID)
	return nil
}

// CompleteInterview finishes KYC: wallet provisioning, the on-chain KYC flag,
// and the welcome grant. A failure after the wallet is stored leaves the
// session in setup_failed for an operator to reconcile.
func (s *KYCService) CompleteInterview(ctx context.Context, user model.UserID, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return apperrors.InvalidInput("Usage: /complete_kyc_interview <conversation_id>")
	}

	session, err := s.Store.GetKYC(ctx, user)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil || session.Status != model.KYCStatusPendingInterview {
		return apperrors.Precondition("There is no KYC interview waiting to be completed. Use /kyc or /next_doc_verification_step first.")
	}
	if session.ConversationID != conversationID {
		log.Warn().Str("userId", string(user)).Str("conversationId", util.MaskID(conversationID)).Msg("KYC interview conversation mismatch")
		return apperrors.Precondition("That conversation id does not match your KYC interview. Please check the id and try again.")
	}

	session.Status = model.KYCStatusInterviewCompleted
	session.UpdatedAt = time.Now()
	if err := s.Store.PutKYC(ctx, session); err != nil {
		return apperrors.Database(err)
	}
	s.notify(ctx, user, "Interview complete. Setting up your Inzo wallet...")

	var completed []string
	fail := func(step string, cause error) error {
		log.Error().Err(cause).Str("userId", string(user)).Str("failedStep", step).Strs("completedSteps", completed).Msg("KYC setup failed")
		session.Status = model.KYCStatusSetupFailed
		session.UpdatedAt = time.Now()
		if err := s.Store.PutKYC(ctx, session); err != nil {
			log.Error().Err(err).Str("userId", string(user)).Msg("failed to record KYC setup failure")
		}
		s.Audit.Record(ctx, audit.Event{
			Type:   audit.EventKYCSetupFailed,
			UserID: string(user),
			Details: map[string]interface{}{
				"failedStep":     step,
				"completedSteps": completed,
				"walletAddress":  session.WalletAddress,
			},
		})
		return apperrors.External("Something went wrong while finishing your KYC setup. Our team has been notified.", cause)
	}

	if !session.HasWallet() {
		address, secret, err := s.Wallets.NewWallet()
		if err != nil {
			return fail("provision_wallet", err)
		}
		if err := session.SetWallet(address, secret); err != nil {
			return fail("provision_wallet", err)
		}
		if err := s.Store.PutKYC(ctx, session); err != nil {
			return fail("provision_wallet", err)
		}
	}
	completed = append(completed, "provision_wallet")

	if err := s.Ledger.SetKYCVerified(ctx, session.WalletAddress); err != nil {
		return fail("set_kyc_verified", err)
	}
	completed = append(completed, "set_kyc_verified")

	if err := s.Ledger.Mint(ctx, session.WalletAddress, s.Settings.InitialGrant); err != nil {
		return fail("mint_initial_grant", err)
	}
	completed = append(completed, "mint_initial_grant")

	session.Status = model.KYCStatusVerifiedOnChain
	session.UpdatedAt = time.Now()
	if err := s.Store.PutKYC(ctx, session); err != nil {
		return fail("persist_verified", err)
	}

	s.Audit.Record(ctx, audit.Event{
		Type:   audit.EventKYCVerified,
		UserID: string(user),
		Details: map[string]interface{}{
			"walletAddress": session.WalletAddress,
			"grant":         util.FormatUnits(s.Settings.InitialGrant),
		},
	})
	s.notifyf(ctx, user,
		"Your KYC is complete!\nInzo Wallet: %s\n\nAs a welcome gift, %s %s has been added to your wallet.\n"+
			"To pay network fees for premiums and transfers, fund this address with some %s.\n"+
			"Use /apply_policy to get insured.",
		session.WalletAddress, util.FormatUnits(s.Settings.InitialGrant), s.Settings.TokenSymbol, s.Settings.GasSymbol)
	return nil
}
