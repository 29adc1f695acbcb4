package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/audit"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/util"
)

type WalletService struct {
	Deps
}

func NewWalletService(d Deps) *WalletService {
	return &WalletService{Deps: d}
}

func (s *WalletService) Show(ctx context.Context, user model.UserID) error {
	kyc, err := s.requireVerified(ctx, user, "view your wallet")
	if err != nil {
		return err
	}

	gas, err := s.Ledger.GasBalance(ctx, kyc.WalletAddress)
	if err != nil {
		return apperrors.External("Could not read your wallet balances. Please try again later.", err)
	}
	tokens, err := s.Ledger.TokenBalance(ctx, kyc.WalletAddress)
	if err != nil {
		return apperrors.External("Could not read your wallet balances. Please try again later.", err)
	}

	s.notifyf(ctx, user,
		"Your Inzo Wallet\nAddress: %s\n%s balance: %s\n%s balance: %s\n\nSend tokens with /transfer_inzousd <address> <amount>",
		kyc.WalletAddress,
		s.Settings.GasSymbol, util.FormatUnits(gas),
		s.Settings.TokenSymbol, util.FormatUnits(tokens))
	return nil
}

// Transfer sends tokens from the user's custodial wallet. A low gas balance
// only warns.
func (s *WalletService) Transfer(ctx context.Context, user model.UserID, to, amountText string) error {
	to = strings.TrimSpace(to)
	if !util.IsValidAddress(to) {
		return apperrors.InvalidInput("Invalid recipient address. It must be 0x followed by 40 hex characters.")
	}
	amount, err := util.ParsePositiveUnits(amountText)
	if err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("Invalid amount %q. Please enter a positive number such as 100 or 12.5.", strings.TrimSpace(amountText)))
	}

	kyc, err := s.requireVerified(ctx, user, "transfer tokens")
	if err != nil {
		return err
	}
	if util.SameAddress(to, kyc.WalletAddress) {
		return apperrors.InvalidInput("You cannot transfer tokens to your own wallet.")
	}

	balance, err := s.Ledger.TokenBalance(ctx, kyc.WalletAddress)
	if err != nil {
		return apperrors.External("Could not read your token balance. Please try again later.", err)
	}
	if balance.Cmp(amount) < 0 {
		return apperrors.Precondition(fmt.Sprintf("Insufficient balance: you have %s %s.", util.FormatUnits(balance), s.Settings.TokenSymbol))
	}

	gas, err := s.Ledger.GasBalance(ctx, kyc.WalletAddress)
	if err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to read gas balance")
	} else if gas.Cmp(s.Settings.TransferGasThreshold) < 0 {
		s.notifyf(ctx, user,
			"Warning: your wallet has only %s %s for network fees (recommended at least %s). The transfer may fail.",
			util.FormatUnits(gas), s.Settings.GasSymbol, util.FormatUnits(s.Settings.TransferGasThreshold))
	}

	txHash, err := s.Ledger.Transfer(ctx, kyc.WalletSecret, to, amount)
	if err != nil {
		log.Error().Err(err).Str("userId", string(user)).Str("to", to).Msg("token transfer failed")
		return apperrors.External("The transfer did not complete. Please try again later.", err)
	}

	s.Audit.Record(ctx, audit.Event{
		Type:   audit.EventTokensTransferred,
		UserID: string(user),
		Details: map[string]interface{}{
			"to":     to,
			"amount": util.FormatUnits(amount),
			"txHash": txHash,
		},
	})
	s.notifyf(ctx, user, "Sent %s %s to %s.\nTransaction: %s",
		util.FormatUnits(amount), s.Settings.TokenSymbol, to, txHash)
	return nil
}
