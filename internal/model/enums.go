package model

type KYCStatus string

const (
	KYCStatusNotStarted           KYCStatus = "not_started"
	KYCStatusPendingDocCompletion KYCStatus = "pending_doc_completion"
	KYCStatusDocPassed            KYCStatus = "doc_passed"
	KYCStatusDocFailed            KYCStatus = "doc_failed"
	KYCStatusPendingInterview     KYCStatus = "pending_interview"
	KYCStatusInterviewCompleted   KYCStatus = "interview_completed"
	KYCStatusVerifiedOnChain      KYCStatus = "verified_on_chain"
	KYCStatusSetupFailed          KYCStatus = "setup_failed"
)

type ApplicationStatus string

const (
	ApplicationStatusPendingQuestions    ApplicationStatus = "pending_questions"
	ApplicationStatusPendingConversation ApplicationStatus = "pending_conversation"
	ApplicationStatusConversationDone    ApplicationStatus = "conversation_done"
)

type InputKind string

const (
	InputKindPolicyAnswer     InputKind = "policy_answer"
	InputKindClaimDescription InputKind = "claim_description"
)

// PolicyStatus mirrors the ledger's enum; the numeric order is part of the
// contract ABI.
type PolicyStatus uint8

const (
	PolicyStatusPendingApplication PolicyStatus = iota
	PolicyStatusActive
	PolicyStatusExpired
	PolicyStatusCancelled
	PolicyStatusClaimUnderReview
	PolicyStatusClaimPaid
	PolicyStatusClaimRejected
)

var policyStatusNames = []string{
	"PendingApplication",
	"Active",
	"Expired",
	"Cancelled",
	"ClaimUnderReview",
	"ClaimPaid",
	"ClaimRejected",
}

func (s PolicyStatus) String() string {
	if int(s) < len(policyStatusNames) {
		return policyStatusNames[s]
	}
	return "Unknown"
}

type RiskTier uint8

const (
	RiskTierStandard RiskTier = iota
	RiskTierPreferred
	RiskTierHighRisk
)

var riskTierNames = []string{"Standard", "Preferred", "HighRisk"}

func (t RiskTier) String() string {
	if int(t) < len(riskTierNames) {
		return riskTierNames[t]
	}
	return "N/A"
}
