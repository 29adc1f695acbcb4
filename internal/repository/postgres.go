package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/inzo/orchestrator-go/internal/database"
	"github.com/inzo/orchestrator-go/internal/model"
)

const (
	kindKYC         = "kyc"
	kindApplication = "application"
	kindClaim       = "claim"
	kindExpected    = "expected_input"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS workflow_sessions (
		kind       TEXT        NOT NULL,
		user_id    TEXT        NOT NULL,
		policy_id  BIGINT      NOT NULL DEFAULT 0,
		data       JSONB       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, user_id, policy_id)
	)`,
	`CREATE INDEX IF NOT EXISTS workflow_sessions_kind_created_idx
		ON workflow_sessions (kind, created_at)`,
}

// PostgresStore keeps every session kind in one JSONB table keyed by
// (kind, user, policy).
type PostgresStore struct {
	db    *database.DB
	codec codec
}

func NewPostgresStore(db *database.DB, encryptionKey string) (*PostgresStore, error) {
	c, err := newCodec(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, codec: c}, nil
}

var _ SessionStore = (*PostgresStore)(nil)

// EnsureSchema creates the sessions table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) load(ctx context.Context, kind string, user model.UserID, policyID uint64) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `
		SELECT data FROM workflow_sessions
		WHERE kind = $1 AND user_id = $2 AND policy_id = $3
	`, kind, string(user), int64(policyID))
	found, err := HandleNotFound(&data, err)
	if err != nil {
		return nil, fmt.Errorf("load %s session: %w", kind, err)
	}
	if found == nil {
		return nil, nil
	}
	return *found, nil
}

func (s *PostgresStore) save(ctx context.Context, kind string, user model.UserID, policyID uint64, data []byte, createdAt time.Time) error {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_sessions (kind, user_id, policy_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (kind, user_id, policy_id)
		DO UPDATE SET data = EXCLUDED.data, created_at = EXCLUDED.created_at, updated_at = now()
	`, kind, string(user), int64(policyID), data, createdAt)
	if err != nil {
		return fmt.Errorf("save %s session: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) remove(ctx context.Context, kind string, user model.UserID, policyID uint64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_sessions
		WHERE kind = $1 AND user_id = $2 AND policy_id = $3
	`, kind, string(user), int64(policyID))
	if err != nil {
		return fmt.Errorf("delete %s session: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) GetKYC(ctx context.Context, user model.UserID) (*model.KYCSession, error) {
	data, err := s.load(ctx, kindKYC, user, 0)
	if err != nil || data == nil {
		return nil, err
	}
	return s.codec.decodeKYC(data)
}

func (s *PostgresStore) PutKYC(ctx context.Context, session *model.KYCSession) error {
	data, err := s.codec.encodeKYC(session)
	if err != nil {
		return err
	}
	return s.save(ctx, kindKYC, session.UserID, 0, data, session.UpdatedAt)
}

func (s *PostgresStore) DeleteKYC(ctx context.Context, user model.UserID) error {
	return s.remove(ctx, kindKYC, user, 0)
}

func (s *PostgresStore) GetApplication(ctx context.Context, user model.UserID) (*model.PolicyApplication, error) {
	data, err := s.load(ctx, kindApplication, user, 0)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeJSON[model.PolicyApplication](data)
}

func (s *PostgresStore) PutApplication(ctx context.Context, app *model.PolicyApplication) error {
	data, err := json.Marshal(app)
	if err != nil {
		return err
	}
	return s.save(ctx, kindApplication, app.UserID, 0, data, app.CreatedAt)
}

func (s *PostgresStore) DeleteApplication(ctx context.Context, user model.UserID) error {
	return s.remove(ctx, kindApplication, user, 0)
}

func (s *PostgresStore) GetClaim(ctx context.Context, user model.UserID, policyID uint64) (*model.ClaimSession, error) {
	data, err := s.load(ctx, kindClaim, user, policyID)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeJSON[model.ClaimSession](data)
}

func (s *PostgresStore) PutClaim(ctx context.Context, claim *model.ClaimSession) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	return s.save(ctx, kindClaim, claim.UserID, claim.PolicyID, data, claim.CreatedAt)
}

func (s *PostgresStore) DeleteClaim(ctx context.Context, user model.UserID, policyID uint64) error {
	return s.remove(ctx, kindClaim, user, policyID)
}

func (s *PostgresStore) GetExpectedInput(ctx context.Context, user model.UserID) (*model.ExpectedInput, error) {
	data, err := s.load(ctx, kindExpected, user, 0)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeJSON[model.ExpectedInput](data)
}

func (s *PostgresStore) PutExpectedInput(ctx context.Context, input *model.ExpectedInput) error {
	data, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return s.save(ctx, kindExpected, input.UserID, 0, data, input.CreatedAt)
}

func (s *PostgresStore) DeleteExpectedInput(ctx context.Context, user model.UserID) error {
	return s.remove(ctx, kindExpected, user, 0)
}

func (s *PostgresStore) DeleteStaleApplications(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteStale(ctx, kindApplication, before)
}

func (s *PostgresStore) DeleteStaleExpectedInputs(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteStale(ctx, kindExpected, before)
}

func (s *PostgresStore) deleteStale(ctx context.Context, kind string, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_sessions WHERE kind = $1 AND created_at < $2
	`, kind, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale %s sessions: %w", kind, err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) CountClaims(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM workflow_sessions WHERE kind = $1
	`, kindClaim)
	if err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}
