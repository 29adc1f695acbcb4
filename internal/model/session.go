package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// UserID is the opaque chat participant handle all sessions are keyed by.
type UserID string

// Secret holds custodial key material. Every rendering path (fmt, JSON, zerolog
// Interface) prints a placeholder; Reveal is the only way to read it.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) Reveal() string { return string(s) }

type KYCSession struct {
	UserID          UserID    `json:"userId"`
	Status          KYCStatus `json:"status"`
	InquiryID       string    `json:"inquiryId,omitempty"`
	ConversationID  string    `json:"conversationId,omitempty"`
	ConversationURL string    `json:"conversationUrl,omitempty"`
	WalletAddress   string    `json:"walletAddress,omitempty"`
	WalletSecret    Secret    `json:"-"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func NewKYCSession(user UserID) *KYCSession {
	return &KYCSession{
		UserID:    user,
		Status:    KYCStatusNotStarted,
		UpdatedAt: time.Now(),
	}
}

// SetWallet records the custodial wallet. Address and secret are only ever set
// together.
func (s *KYCSession) SetWallet(address string, secret Secret) error {
	if address == "" || secret == "" {
		return fmt.Errorf("wallet address and secret must both be set")
	}
	if s.WalletAddress != "" {
		return fmt.Errorf("custodial wallet already provisioned")
	}
	s.WalletAddress = address
	s.WalletSecret = secret
	return nil
}

func (s *KYCSession) HasWallet() bool {
	return s != nil && s.WalletAddress != "" && s.WalletSecret != ""
}

func (s *KYCSession) Verified() bool {
	return s != nil && s.Status == KYCStatusVerifiedOnChain
}

type PolicyApplication struct {
	UserID          UserID            `json:"userId"`
	Status          ApplicationStatus `json:"status"`
	Answers         []string          `json:"answers"`
	ConversationID  string            `json:"conversationId,omitempty"`
	ConversationURL string            `json:"conversationUrl,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

func NewPolicyApplication(user UserID) *PolicyApplication {
	return &PolicyApplication{
		UserID:    user,
		Status:    ApplicationStatusPendingQuestions,
		Answers:   []string{},
		CreatedAt: time.Now(),
	}
}

// Step is the index of the next unanswered question.
func (a *PolicyApplication) Step() int {
	return len(a.Answers)
}

// Answer appends one answer, refusing to go past questionCount.
func (a *PolicyApplication) Answer(text string, questionCount int) error {
	if a.Status != ApplicationStatusPendingQuestions {
		return fmt.Errorf("application is not collecting answers (status %s)", a.Status)
	}
	if a.Step() >= questionCount {
		return fmt.Errorf("all %d questions already answered", questionCount)
	}
	a.Answers = append(a.Answers, text)
	return nil
}

type ClaimSession struct {
	UserID          UserID    `json:"userId"`
	PolicyID        uint64    `json:"policyId"`
	Description     string    `json:"description"`
	ConversationID  string    `json:"conversationId,omitempty"`
	ConversationURL string    `json:"conversationUrl,omitempty"`
	CaseID          string    `json:"caseId,omitempty"`
	SubmittedAt     time.Time `json:"submittedAt,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ExpectedInput marks that the next free-text message from a user is an answer
// of the given kind rather than chatter.
type ExpectedInput struct {
	UserID    UserID    `json:"userId"`
	Kind      InputKind `json:"kind"`
	PolicyID  uint64    `json:"policyId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
