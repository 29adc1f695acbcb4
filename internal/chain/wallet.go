package chain

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/inzo/orchestrator-go/internal/model"
)

// KeyGenerator provisions custodial wallets.
type KeyGenerator struct{}

// NewWallet creates a fresh key pair. The secret is the 0x-prefixed hex
// private key.
func (KeyGenerator) NewWallet() (string, model.Secret, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	secret := model.Secret("0x" + hex.EncodeToString(crypto.FromECDSA(key)))
	return address, secret, nil
}

// ParsePrivateKey accepts a hex private key with or without the 0x prefix.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// AddressOf returns the account address controlled by a secret.
func AddressOf(secret model.Secret) (string, error) {
	key, err := ParsePrivateKey(secret.Reveal())
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func keyAddress(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
