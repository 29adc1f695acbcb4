package repository

import (
	"context"
	"sync"
	"time"

	"github.com/inzo/orchestrator-go/internal/model"
)

type claimKey struct {
	user     model.UserID
	policyID uint64
}

// MemoryStore keeps sessions in process memory. Values are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	kyc      map[model.UserID]model.KYCSession
	apps     map[model.UserID]model.PolicyApplication
	claims   map[claimKey]model.ClaimSession
	expected map[model.UserID]model.ExpectedInput
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kyc:      make(map[model.UserID]model.KYCSession),
		apps:     make(map[model.UserID]model.PolicyApplication),
		claims:   make(map[claimKey]model.ClaimSession),
		expected: make(map[model.UserID]model.ExpectedInput),
	}
}

var _ SessionStore = (*MemoryStore)(nil)

func (s *MemoryStore) GetKYC(_ context.Context, user model.UserID) (*model.KYCSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kyc[user]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryStore) PutKYC(_ context.Context, session *model.KYCSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kyc[session.UserID] = *session
	return nil
}

func (s *MemoryStore) DeleteKYC(_ context.Context, user model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kyc, user)
	return nil
}

func (s *MemoryStore) GetApplication(_ context.Context, user model.UserID) (*model.PolicyApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.apps[user]
	if !ok {
		return nil, nil
	}
	v.Answers = append([]string(nil), v.Answers...)
	return &v, nil
}

func (s *MemoryStore) PutApplication(_ context.Context, app *model.PolicyApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *app
	v.Answers = append([]string(nil), app.Answers...)
	s.apps[app.UserID] = v
	return nil
}

func (s *MemoryStore) DeleteApplication(_ context.Context, user model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.apps, user)
	return nil
}

func (s *MemoryStore) GetClaim(_ context.Context, user model.UserID, policyID uint64) (*model.ClaimSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.claims[claimKey{user, policyID}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryStore) PutClaim(_ context.Context, claim *model.ClaimSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[claimKey{claim.UserID, claim.PolicyID}] = *claim
	return nil
}

func (s *MemoryStore) DeleteClaim(_ context.Context, user model.UserID, policyID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, claimKey{user, policyID})
	return nil
}

func (s *MemoryStore) GetExpectedInput(_ context.Context, user model.UserID) (*model.ExpectedInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.expected[user]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryStore) PutExpectedInput(_ context.Context, input *model.ExpectedInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expected[input.UserID] = *input
	return nil
}

func (s *MemoryStore) DeleteExpectedInput(_ context.Context, user model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expected, user)
	return nil
}

func (s *MemoryStore) DeleteStaleApplications(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for user, app := range s.apps {
		if app.CreatedAt.Before(before) {
			delete(s.apps, user)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteStaleExpectedInputs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for user, in := range s.expected {
		if in.CreatedAt.Before(before) {
			delete(s.expected, user)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountClaims(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.claims)), nil
}
