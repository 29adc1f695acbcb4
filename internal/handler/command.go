package handler

import (
	"strings"
)

const (
	CmdStart               = "start"
	CmdHelp                = "help"
	CmdKYC                 = "kyc"
	CmdNextDocStep         = "next_doc_verification_step"
	CmdCompleteInterview   = "complete_kyc_interview"
	CmdMyWallet            = "my_wallet"
	CmdTransfer            = "transfer_inzousd"
	CmdApplyPolicy         = "apply_policy"
	CmdCompleteApplication = "complete_policy_application"
	CmdMyPolicies          = "my_policies"
	CmdViewPolicy          = "view_policy"
	CmdPayPremium          = "pay_premium"
	CmdFileClaim           = "file_claim"
	CmdContinueClaim       = "continue_claim"
)

type Command struct {
	Name string
	Args []string
}

// parseCommand reads "/name arg..." with an optional "@botname" suffix on
// the name. Anything else is free text and returns nil.
func parseCommand(text string) *Command {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return nil
	}

	return &Command{
		Name: strings.ToLower(name),
		Args: fields[1:],
	}
}
