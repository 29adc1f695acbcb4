package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/audit"
	"github.com/inzo/orchestrator-go/internal/config"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/gateway"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/repository"
	"github.com/inzo/orchestrator-go/internal/util"
)

// Ledger is the on-chain gateway. Every write returns only after the
// transaction is mined. *chain.Client implements it.
type Ledger interface {
	GetPolicy(ctx context.Context, policyID uint64) (*model.Policy, error)
	ListPolicyIDs(ctx context.Context, holder string) ([]uint64, error)
	TokenBalance(ctx context.Context, address string) (*big.Int, error)
	GasBalance(ctx context.Context, address string) (*big.Int, error)
	GetDecision(ctx context.Context, policyID uint64, caseID *big.Int) (*model.Decision, error)

	CreatePolicy(ctx context.Context, draft model.PolicyDraft) (uint64, error)
	UpdatePolicyStatus(ctx context.Context, policyID uint64, status model.PolicyStatus) error
	SetKYCVerified(ctx context.Context, address string) error
	Mint(ctx context.Context, to string, amount *big.Int) error
	ApproveFund(ctx context.Context, owner model.Secret, amount *big.Int) error
	CollectPremium(ctx context.Context, policyID uint64, payer string, amount *big.Int) error
	PayOut(ctx context.Context, policyID uint64, holder string, amount *big.Int) error
	Transfer(ctx context.Context, from model.Secret, to string, amount *big.Int) (string, error)
}

// WalletProvisioner creates custodial key pairs.
type WalletProvisioner interface {
	NewWallet() (address string, secret model.Secret, err error)
}

type IdentityGateway interface {
	CreateInquiry(ctx context.Context, referenceID string) (string, error)
	GenerateAccessLink(ctx context.Context, inquiryID string) (string, error)
	GetStatus(ctx context.Context, inquiryID string) (string, error)
}

type ConversationGateway interface {
	CreateConversation(ctx context.Context, replicaID, name, conversationalContext string) (gateway.Conversation, error)
}

type OracleGateway interface {
	SubmitCase(ctx context.Context, req gateway.CaseRequest) (json.RawMessage, error)
}

// Notifier delivers a chat message to a user through the transport bridge.
type Notifier interface {
	Notify(ctx context.Context, user model.UserID, text string) error
}

// Settings are the tunables the workflows read, already parsed.
type Settings struct {
	TokenSymbol          string
	GasSymbol            string
	InitialGrant         *big.Int
	PremiumGasThreshold  *big.Int
	TransferGasThreshold *big.Int
	ReplicaKYC           string
	ReplicaPolicy        string
	ReplicaClaim         string
	PollInterval         time.Duration
	PollMaxAttempts      int
}

func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	grant, err := util.ParsePositiveUnits(cfg.InitialTokenGrant)
	if err != nil {
		return Settings{}, fmt.Errorf("INITIAL_TOKEN_GRANT: %w", err)
	}
	premiumGas, err := util.ParseUnits(cfg.PremiumGasThreshold)
	if err != nil {
		return Settings{}, fmt.Errorf("PREMIUM_GAS_THRESHOLD: %w", err)
	}
	transferGas, err := util.ParseUnits(cfg.TransferGasThreshold)
	if err != nil {
		return Settings{}, fmt.Errorf("TRANSFER_GAS_THRESHOLD: %w", err)
	}

	return Settings{
		TokenSymbol:          cfg.TokenSymbol,
		GasSymbol:            cfg.GasSymbol,
		InitialGrant:         grant,
		PremiumGasThreshold:  premiumGas,
		TransferGasThreshold: transferGas,
		ReplicaKYC:           cfg.ReplicaKYC(),
		ReplicaPolicy:        cfg.ReplicaPolicy(),
		ReplicaClaim:         cfg.ReplicaClaim(),
		PollInterval:         cfg.ClaimPollInterval(),
		PollMaxAttempts:      cfg.ClaimPollMaxAttempts,
	}, nil
}

// Deps bundles what every workflow needs. Gateways a workflow does not use may
// be left nil.
type Deps struct {
	Store         repository.SessionStore
	Ledger        Ledger
	Wallets       WalletProvisioner
	Identity      IdentityGateway
	Conversations ConversationGateway
	Oracle        OracleGateway
	Notifier      Notifier
	Audit         *audit.Recorder
	Settings      Settings
}

// notify never fails the workflow; a lost message is logged and the state
// change stands.
func (d Deps) notify(ctx context.Context, user model.UserID, text string) {
	if d.Notifier == nil {
		return
	}
	if err := d.Notifier.Notify(ctx, user, text); err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to deliver chat message")
	}
}

func (d Deps) notifyf(ctx context.Context, user model.UserID, format string, args ...any) {
	d.notify(ctx, user, fmt.Sprintf(format, args...))
}

// requireVerified loads the user's KYC session and rejects anyone not yet
// verified on chain.
func (d Deps) requireVerified(ctx context.Context, user model.UserID, action string) (*model.KYCSession, error) {
	kyc, err := d.Store.GetKYC(ctx, user)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !kyc.Verified() {
		return nil, apperrors.Precondition(fmt.Sprintf("You must complete KYC verification before you can %s. Use /kyc to start.", action))
	}
	if !kyc.HasWallet() {
		return nil, apperrors.Precondition("Your custodial wallet is not set up. Please complete KYC with /kyc.")
	}
	return kyc, nil
}

// ownedPolicy reads a policy and checks it belongs to wallet. Nothing is
// written before this check passes.
func (d Deps) ownedPolicy(ctx context.Context, policyID uint64, wallet string) (*model.Policy, error) {
	policy, err := d.Ledger.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, apperrors.External("Could not read the policy from the ledger. Please try again later.", err)
	}
	if policy == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("Policy %d was not found.", policyID))
	}
	if !util.SameAddress(policy.Holder, wallet) {
		return nil, apperrors.Forbidden(fmt.Sprintf("Policy %d does not belong to your wallet.", policyID))
	}
	return policy, nil
}
