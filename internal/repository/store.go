package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/util"
)

// SessionStore holds per-user workflow state. Get methods return (nil, nil)
// when nothing is stored. Put overwrites; concurrent writers for the same key
// resolve as last write wins.
type SessionStore interface {
	GetKYC(ctx context.Context, user model.UserID) (*model.KYCSession, error)
	PutKYC(ctx context.Context, session *model.KYCSession) error
	DeleteKYC(ctx context.Context, user model.UserID) error

	GetApplication(ctx context.Context, user model.UserID) (*model.PolicyApplication, error)
	PutApplication(ctx context.Context, app *model.PolicyApplication) error
	DeleteApplication(ctx context.Context, user model.UserID) error

	GetClaim(ctx context.Context, user model.UserID, policyID uint64) (*model.ClaimSession, error)
	PutClaim(ctx context.Context, claim *model.ClaimSession) error
	DeleteClaim(ctx context.Context, user model.UserID, policyID uint64) error

	GetExpectedInput(ctx context.Context, user model.UserID) (*model.ExpectedInput, error)
	PutExpectedInput(ctx context.Context, input *model.ExpectedInput) error
	DeleteExpectedInput(ctx context.Context, user model.UserID) error

	DeleteStaleApplications(ctx context.Context, before time.Time) (int64, error)
	DeleteStaleExpectedInputs(ctx context.Context, before time.Time) (int64, error)
	CountClaims(ctx context.Context) (int64, error)
}

// kycRecord is the stored form of a KYC session. The wallet secret is carried
// in its own field, sealed when an encryption key is configured.
type kycRecord struct {
	*model.KYCSession
	Secret string `json:"walletSecret,omitempty"`
	Sealed bool   `json:"sealed,omitempty"`
}

// codec serializes sessions for the external backends.
type codec struct {
	sealer *util.Sealer
}

func newCodec(encryptionKey string) (codec, error) {
	if encryptionKey == "" {
		return codec{}, nil
	}
	sealer, err := util.NewSealer(encryptionKey)
	if err != nil {
		return codec{}, err
	}
	return codec{sealer: sealer}, nil
}

func (c codec) encodeKYC(s *model.KYCSession) ([]byte, error) {
	rec := kycRecord{KYCSession: s, Secret: s.WalletSecret.Reveal()}
	if rec.Secret != "" && c.sealer != nil {
		sealed, err := c.sealer.Seal(rec.Secret)
		if err != nil {
			return nil, fmt.Errorf("seal wallet secret: %w", err)
		}
		rec.Secret = sealed
		rec.Sealed = true
	}
	return json.Marshal(rec)
}

func (c codec) decodeKYC(data []byte) (*model.KYCSession, error) {
	var rec kycRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode kyc session: %w", err)
	}
	if rec.KYCSession == nil {
		rec.KYCSession = &model.KYCSession{}
	}
	secret := rec.Secret
	if rec.Sealed {
		if c.sealer == nil {
			return nil, fmt.Errorf("kyc session for %s is encrypted but no encryption key is configured", rec.UserID)
		}
		opened, err := c.sealer.Open(secret)
		if err != nil {
			return nil, fmt.Errorf("open wallet secret: %w", err)
		}
		secret = opened
	}
	rec.KYCSession.WalletSecret = model.Secret(secret)
	return rec.KYCSession, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
