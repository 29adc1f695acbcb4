package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inzo/orchestrator-go/internal/gateway"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/repository"
	"github.com/inzo/orchestrator-go/internal/util"
)

const (
	testUser   model.UserID = "42"
	testWallet              = "0x1111111111111111111111111111111111111111"
	otherAddr               = "0x2222222222222222222222222222222222222222"
	testSecret model.Secret = "0xsecret"
)

func units(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := util.ParseUnits(s)
	require.NoError(t, err)
	return v
}

// fakeLedger is an in-memory ledger that records every write.
type fakeLedger struct {
	mu sync.Mutex

	policies  map[uint64]*model.Policy
	tokens    map[string]*big.Int
	gas       map[string]*big.Int
	verified  map[string]bool
	decisions []*model.Decision
	nextID    uint64

	writes        []string
	decisionReads int
	payouts       []*big.Int
	drafts        []model.PolicyDraft

	failOn      map[string]error
	decisionErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		policies: map[uint64]*model.Policy{},
		tokens:   map[string]*big.Int{},
		gas:      map[string]*big.Int{},
		verified: map[string]bool{},
		nextID:   1,
		failOn:   map[string]error{},
	}
}

func (l *fakeLedger) addPolicy(p *model.Policy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[p.ID] = p
}

func (l *fakeLedger) write(op string) error {
	l.writes = append(l.writes, op)
	return l.failOn[op]
}

func (l *fakeLedger) GetPolicy(_ context.Context, policyID uint64) (*model.Policy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failOn["GetPolicy"]; err != nil {
		return nil, err
	}
	p, ok := l.policies[policyID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (l *fakeLedger) ListPolicyIDs(_ context.Context, holder string) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []uint64
	for id, p := range l.policies {
		if strings.EqualFold(p.Holder, holder) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (l *fakeLedger) TokenBalance(_ context.Context, address string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.tokens[address]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (l *fakeLedger) GasBalance(_ context.Context, address string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.gas[address]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

// GetDecision returns the queued decisions in order, then the last one
// forever. With nothing queued it reports "not yet decided".
func (l *fakeLedger) GetDecision(_ context.Context, _ uint64, _ *big.Int) (*model.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisionReads++
	if l.decisionErr != nil {
		return nil, l.decisionErr
	}
	if len(l.decisions) == 0 {
		return &model.Decision{PayoutAmount: big.NewInt(0)}, nil
	}
	d := l.decisions[0]
	if len(l.decisions) > 1 {
		l.decisions = l.decisions[1:]
	}
	return d, nil
}

func (l *fakeLedger) CreatePolicy(_ context.Context, draft model.PolicyDraft) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write("CreatePolicy"); err != nil {
		return 0, err
	}
	l.drafts = append(l.drafts, draft)
	id := l.nextID
	l.nextID++
	l.policies[id] = &model.Policy{
		ID:              id,
		Holder:          draft.Holder,
		Status:          model.PolicyStatusPendingApplication,
		CoverageAmount:  draft.CoverageAmount,
		PremiumAmount:   draft.PremiumAmount,
		RiskTier:        draft.RiskTier,
		AssetIdentifier: draft.AssetIdentifier,
		StartDate:       draft.StartDate,
		EndDate:         draft.EndDate,
		DetailsHash:     draft.DetailsHash,
	}
	return id, nil
}

func (l *fakeLedger) UpdatePolicyStatus(_ context.Context, policyID uint64, status model.PolicyStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write("UpdatePolicyStatus:" + status.String()); err != nil {
		return err
	}
	p, ok := l.policies[policyID]
	if !ok {
		return fmt.Errorf("policy %d not found", policyID)
	}
	p.Status = status
	return nil
}

func (l *fakeLedger) SetKYCVerified(_ context.Context, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write("SetKYCVerified"); err != nil {
		return err
	}
	l.verified[address] = true
	return nil
}

func (l *fakeLedger) Mint(_ context.Context, to string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write("Mint"); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

func (l *fakeLedger) credit(to string, amount *big.Int) {
	cur, ok := l.tokens[to]
	if !ok {
		cur = big.NewInt(0)
	}
	l.tokens[to] = new(big.Int).Add(cur, amount)
}

func (l *fakeLedger) ApproveFund(_ context.Context, _ model.Secret, _ *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write("ApproveFund")
}

func (l *fakeLedger) CollectPremium(_ context.Context, _ uint64, payer string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write("CollectPremium"); err != nil {
		return err
	}
	l.credit(payer, new(big.Int).Neg(amount))
	return nil
}

func (l *fakeLedger) PayOut(_ context.Context, _ uint64, holder string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write("PayOut"); err != nil {
		return err
	}
	l.payouts = append(l.payouts, amount)
	l.credit(holder, amount)
	return nil
}

func (l *fakeLedger) Transfer(_ context.Context, _ model.Secret, to string, amount *big.Int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write("Transfer"); err != nil {
		return "", err
	}
	l.credit(testWallet, new(big.Int).Neg(amount))
	l.credit(to, amount)
	return "0xtxhash", nil
}

func (l *fakeLedger) writeLog() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.writes...)
}

func (l *fakeLedger) status(id uint64) model.PolicyStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.policies[id].Status
}

type fakeWallets struct {
	calls int
	err   error
}

func (w *fakeWallets) NewWallet() (string, model.Secret, error) {
	w.calls++
	if w.err != nil {
		return "", "", w.err
	}
	return testWallet, testSecret, nil
}

type mockIdentity struct {
	mock.Mock
}

func (m *mockIdentity) CreateInquiry(ctx context.Context, referenceID string) (string, error) {
	args := m.Called(ctx, referenceID)
	return args.String(0), args.Error(1)
}

func (m *mockIdentity) GenerateAccessLink(ctx context.Context, inquiryID string) (string, error) {
	args := m.Called(ctx, inquiryID)
	return args.String(0), args.Error(1)
}

func (m *mockIdentity) GetStatus(ctx context.Context, inquiryID string) (string, error) {
	args := m.Called(ctx, inquiryID)
	return args.String(0), args.Error(1)
}

type mockConversations struct {
	mock.Mock
}

func (m *mockConversations) CreateConversation(ctx context.Context, replicaID, name, conversationalContext string) (gateway.Conversation, error) {
	args := m.Called(ctx, replicaID, name, conversationalContext)
	return args.Get(0).(gateway.Conversation), args.Error(1)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) SubmitCase(ctx context.Context, req gateway.CaseRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ model.UserID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *recordingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

type harness struct {
	deps     Deps
	store    *repository.MemoryStore
	ledger   *fakeLedger
	wallets  *fakeWallets
	identity *mockIdentity
	convs    *mockConversations
	oracle   *mockOracle
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    repository.NewMemoryStore(),
		ledger:   newFakeLedger(),
		wallets:  &fakeWallets{},
		identity: &mockIdentity{},
		convs:    &mockConversations{},
		oracle:   &mockOracle{},
		notifier: &recordingNotifier{},
	}
	h.deps = Deps{
		Store:         h.store,
		Ledger:        h.ledger,
		Wallets:       h.wallets,
		Identity:      h.identity,
		Conversations: h.convs,
		Oracle:        h.oracle,
		Notifier:      h.notifier,
		Settings: Settings{
			TokenSymbol:          "InzoUSD",
			GasSymbol:            "WND",
			InitialGrant:         units(t, "3000"),
			PremiumGasThreshold:  units(t, "0.2"),
			TransferGasThreshold: units(t, "0.1"),
			ReplicaKYC:           "r-kyc",
			ReplicaPolicy:        "r-policy",
			ReplicaClaim:         "r-claim",
			PollInterval:         5 * time.Second,
			PollMaxAttempts:      12,
		},
	}
	t.Cleanup(func() {
		h.identity.AssertExpectations(t)
		h.convs.AssertExpectations(t)
		h.oracle.AssertExpectations(t)
	})
	return h
}

// verifiedUser stores a KYC session that has finished on chain.
func (h *harness) verifiedUser(t *testing.T) {
	t.Helper()
	s := model.NewKYCSession(testUser)
	require.NoError(t, s.SetWallet(testWallet, testSecret))
	s.Status = model.KYCStatusVerifiedOnChain
	require.NoError(t, h.store.PutKYC(context.Background(), s))
}

func (h *harness) policy(t *testing.T, id uint64, holder string, status model.PolicyStatus) *model.Policy {
	t.Helper()
	p := &model.Policy{
		ID:              id,
		Holder:          holder,
		Status:          status,
		CoverageAmount:  units(t, "1500"),
		PremiumAmount:   units(t, "75"),
		AssetIdentifier: "MacBook Pro",
		StartDate:       time.Unix(1700000000, 0),
		EndDate:         time.Unix(1700000000, 0).AddDate(0, 0, 365),
	}
	h.ledger.addPolicy(p)
	return p
}
