package service

import (
	"context"

	"github.com/inzo/orchestrator-go/internal/model"
)

const helpText = `Welcome to Inzo Insurance!

Identity
/kyc - start identity verification
/next_doc_verification_step - check your documents and open the KYC interview
/complete_kyc_interview <conversation_id> - finish KYC after the interview

Wallet
/my_wallet - show your wallet address and balances
/transfer_inzousd <address> <amount> - send tokens

Policies
/apply_policy - apply for a new policy
/complete_policy_application <conversation_id> - finish an application
/my_policies - list your policies
/view_policy <policy_id> - show one policy
/pay_premium <policy_id> - pay the premium and activate a policy

Claims
/file_claim <policy_id> - file a claim on an active policy
/continue_claim <policy_id> <conversation_id> - submit a claim for a decision`

// Help sends the command overview.
func Help(ctx context.Context, d Deps, user model.UserID) {
	d.notify(ctx, user, helpText)
}
