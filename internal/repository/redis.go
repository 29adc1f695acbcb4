package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/model"
	redisclient "github.com/inzo/orchestrator-go/internal/redis"
)

const scanBatch = 100

// RedisStore keeps each session as a JSON string under its own key. Only
// applications and expected inputs expire; KYC and claim sessions persist
// until explicitly deleted.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	codec  codec
}

func NewRedisStore(client *redis.Client, ttl time.Duration, encryptionKey string) (*RedisStore, error) {
	c, err := newCodec(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client, ttl: ttl, codec: c}, nil
}

var _ SessionStore = (*RedisStore)(nil)

func (s *RedisStore) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// set writes key with the given expiry. A zero ttl keeps the key forever.
func (s *RedisStore) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetKYC(ctx context.Context, user model.UserID) (*model.KYCSession, error) {
	data, err := s.get(ctx, redisclient.KYCKey(string(user)))
	if err != nil || data == nil {
		return nil, err
	}
	return s.codec.decodeKYC(data)
}

func (s *RedisStore) PutKYC(ctx context.Context, session *model.KYCSession) error {
	data, err := s.codec.encodeKYC(session)
	if err != nil {
		return err
	}
	return s.set(ctx, redisclient.KYCKey(string(session.UserID)), data, 0)
}

func (s *RedisStore) DeleteKYC(ctx context.Context, user model.UserID) error {
	return s.del(ctx, redisclient.KYCKey(string(user)))
}

func (s *RedisStore) GetApplication(ctx context.Context, user model.UserID) (*model.PolicyApplication, error) {
	data, err := s.get(ctx, redisclient.ApplicationKey(string(user)))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeJSON[model.PolicyApplication](data)
}

func (s *RedisStore) PutApplication(ctx context.Context, app *model.PolicyApplication) error {
	data, err := json.Marshal(app)
	if err != nil {
		return err
	}
	return s.set(ctx, redisclient.ApplicationKey(string(app.UserID)), data, s.ttl)
}

func (s *RedisStore) DeleteApplication(ctx context.Context, user model.UserID) error {
	return s.del(ctx, redisclient.ApplicationKey(string(user)))
}

func (s *RedisStore) GetClaim(ctx context.Context, user model.UserID, policyID uint64) (*model.ClaimSession, error) {
	data, err := s.get(ctx, redisclient.ClaimKey(string(user), policyID))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeJSON[model.ClaimSession](data)
}

func (s *RedisStore) PutClaim(ctx context.Context, claim *model.ClaimSession) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	return s.set(ctx, redisclient.ClaimKey(string(claim.UserID), claim.PolicyID), data, 0)
}

func (s *RedisStore) DeleteClaim(ctx context.Context, user model.UserID, policyID uint64) error {
	return s.del(ctx, redisclient.ClaimKey(string(user), policyID))
}

func (s *RedisStore) GetExpectedInput(ctx context.Context, user model.UserID) (*model.ExpectedInput, error) {
	data, err := s.get(ctx, redisclient.ExpectedInputKey(string(user)))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeJSON[model.ExpectedInput](data)
}

func (s *RedisStore) PutExpectedInput(ctx context.Context, input *model.ExpectedInput) error {
	data, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return s.set(ctx, redisclient.ExpectedInputKey(string(input.UserID)), data, s.ttl)
}

func (s *RedisStore) DeleteExpectedInput(ctx context.Context, user model.UserID) error {
	return s.del(ctx, redisclient.ExpectedInputKey(string(user)))
}

func (s *RedisStore) DeleteStaleApplications(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteStale(ctx, redisclient.ApplicationPattern, func(data []byte) (time.Time, error) {
		app, err := decodeJSON[model.PolicyApplication](data)
		if err != nil {
			return time.Time{}, err
		}
		return app.CreatedAt, nil
	}, before)
}

func (s *RedisStore) DeleteStaleExpectedInputs(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteStale(ctx, redisclient.ExpectedInputPattern, func(data []byte) (time.Time, error) {
		in, err := decodeJSON[model.ExpectedInput](data)
		if err != nil {
			return time.Time{}, err
		}
		return in.CreatedAt, nil
	}, before)
}

func (s *RedisStore) deleteStale(ctx context.Context, pattern string, createdAt func([]byte) (time.Time, error), before time.Time) (int64, error) {
	var deleted int64
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.get(ctx, key)
		if err != nil {
			return deleted, err
		}
		if data == nil {
			continue
		}
		ts, err := createdAt(data)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping undecodable session")
			continue
		}
		if ts.Before(before) {
			if err := s.del(ctx, key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return deleted, nil
}

func (s *RedisStore) CountClaims(ctx context.Context) (int64, error) {
	var n int64
	iter := s.client.Scan(ctx, 0, redisclient.ClaimPattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan claims: %w", err)
	}
	return n, nil
}
