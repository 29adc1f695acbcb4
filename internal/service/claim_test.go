package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inzo/orchestrator-go/internal/config"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/gateway"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/util"
)

func TestClaimService_File(t *testing.T) {
	ctx := context.Background()

	t.Run("active policy prompts for description", func(t *testing.T) {
		h := newHarness(t)
		h.verifiedUser(t)
		h.policy(t, 7, testWallet, model.PolicyStatusActive)

		require.NoError(t, NewClaimService(h.deps).File(ctx, testUser, 7))

		input, err := h.store.GetExpectedInput(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, model.InputKindClaimDescription, input.Kind)
		assert.Equal(t, uint64(7), input.PolicyID)
		assert.Empty(t, h.ledger.writeLog())
	})

	rejections := []struct {
		name   string
		holder string
		status model.PolicyStatus
		code   apperrors.ErrorCode
	}{
		{"expired policy", testWallet, model.PolicyStatusExpired, apperrors.ErrCodePreconditionFailed},
		{"pending policy", testWallet, model.PolicyStatusPendingApplication, apperrors.ErrCodePreconditionFailed},
		{"claim already paid", testWallet, model.PolicyStatusClaimPaid, apperrors.ErrCodePreconditionFailed},
		{"someone else's policy", otherAddr, model.PolicyStatusActive, apperrors.ErrCodeForbidden},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.verifiedUser(t)
			h.policy(t, 7, tt.holder, tt.status)

			err := NewClaimService(h.deps).File(ctx, testUser, 7)
			assert.Equal(t, tt.code, apperrors.GetCode(err))

			input, err := h.store.GetExpectedInput(ctx, testUser)
			require.NoError(t, err)
			assert.Nil(t, input)
			assert.Empty(t, h.ledger.writeLog())
			h.convs.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("requires verified KYC", func(t *testing.T) {
		h := newHarness(t)
		h.policy(t, 7, testWallet, model.PolicyStatusActive)

		err := NewClaimService(h.deps).File(ctx, testUser, 7)
		assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.GetCode(err))
	})
}

func TestClaimService_SubmitDescription(t *testing.T) {
	ctx := context.Background()

	t.Run("opens investigation and marks under review", func(t *testing.T) {
		h := newHarness(t)
		h.verifiedUser(t)
		h.policy(t, 7, testWallet, model.PolicyStatusActive)
		h.convs.On("CreateConversation", mock.Anything, "r-claim", mock.Anything, mock.Anything).
			Return(gateway.Conversation{ID: "cconv", URL: "https://meet.example/cconv"}, nil)

		svc := NewClaimService(h.deps)
		require.NoError(t, svc.File(ctx, testUser, 7))
		require.NoError(t, svc.SubmitDescription(ctx, testUser, 7, "Dropped it in the sea"))

		claim, err := h.store.GetClaim(ctx, testUser, 7)
		require.NoError(t, err)
		assert.Equal(t, "Dropped it in the sea", claim.Description)
		assert.Equal(t, "cconv", claim.ConversationID)
		assert.Equal(t, model.PolicyStatusClaimUnderReview, h.ledger.status(7))

		input, err := h.store.GetExpectedInput(ctx, testUser)
		require.NoError(t, err)
		assert.Nil(t, input)

		convContext := h.convs.Calls[0].Arguments.String(3)
		assert.Contains(t, convContext, "Asset: MacBook Pro, Coverage: 1500 InzoUSD, Premium: 75 InzoUSD, Risk Tier: Standard")
		assert.Contains(t, convContext, "Dropped it in the sea")
		assert.Contains(t, h.notifier.last(), "/continue_claim 7 cconv")
	})

	t.Run("conversation failure keeps status and session", func(t *testing.T) {
		h := newHarness(t)
		h.verifiedUser(t)
		h.policy(t, 7, testWallet, model.PolicyStatusActive)
		h.convs.On("CreateConversation", mock.Anything, "r-claim", mock.Anything, mock.Anything).
			Return(gateway.Conversation{}, errors.New("down"))

		err := NewClaimService(h.deps).SubmitDescription(ctx, testUser, 7, "Stolen")
		assert.Equal(t, apperrors.ErrCodeExternal, apperrors.GetCode(err))

		assert.Equal(t, model.PolicyStatusActive, h.ledger.status(7))
		assert.Empty(t, h.ledger.writeLog())
		claim, err := h.store.GetClaim(ctx, testUser, 7)
		require.NoError(t, err)
		require.NotNil(t, claim)
		assert.Equal(t, "Stolen", claim.Description)
	})

	t.Run("empty description keeps marker", func(t *testing.T) {
		h := newHarness(t)
		h.verifiedUser(t)
		h.policy(t, 7, testWallet, model.PolicyStatusActive)
		svc := NewClaimService(h.deps)
		require.NoError(t, svc.File(ctx, testUser, 7))

		err := svc.SubmitDescription(ctx, testUser, 7, "  ")
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

		input, err := h.store.GetExpectedInput(ctx, testUser)
		require.NoError(t, err)
		assert.NotNil(t, input)
	})
}

// claimReady stores a claim session with its conversation and a policy under
// review, and stubs the oracle.
func claimReady(t *testing.T, h *harness) *ClaimService {
	t.Helper()
	h.verifiedUser(t)
	h.policy(t, 7, testWallet, model.PolicyStatusClaimUnderReview)
	require.NoError(t, h.store.PutClaim(context.Background(), &model.ClaimSession{
		UserID:         testUser,
		PolicyID:       7,
		Description:    "Screen cracked",
		ConversationID: "cconv",
		CreatedAt:      time.Now(),
	}))

	want := gateway.CaseRequest{
		PolicyID:       "7",
		CaseID:         util.DeriveCaseID("cconv").String(),
		ConversationID: "cconv",
		UserID:         string(testUser),
		ClaimDetails:   gateway.ClaimDetails{Description: "Screen cracked"},
	}
	h.oracle.On("SubmitCase", mock.Anything, want).Return(json.RawMessage(`{"status":"received"}`), nil)

	svc := NewClaimService(h.deps)
	svc.sleep = func(time.Duration) {}
	return svc
}

func TestClaimService_Continue(t *testing.T) {
	ctx := context.Background()

	t.Run("timeout polls exactly max attempts and keeps session", func(t *testing.T) {
		h := newHarness(t)
		svc := claimReady(t, h)
		var slept []time.Duration
		svc.sleep = func(d time.Duration) { slept = append(slept, d) }

		outcome, err := svc.Continue(ctx, testUser, 7, "cconv")
		require.NoError(t, err)
		assert.Equal(t, ClaimOutcomePending, outcome)
		assert.Equal(t, 12, h.ledger.decisionReads)
		assert.Len(t, slept, 12)
		assert.Equal(t, 5*time.Second, slept[0])

		claim, err := h.store.GetClaim(ctx, testUser, 7)
		require.NoError(t, err)
		require.NotNil(t, claim)
		assert.Equal(t, util.DeriveCaseID("cconv").String(), claim.CaseID)
		assert.Equal(t, model.PolicyStatusClaimUnderReview, h.ledger.status(7))
		assert.Contains(t, h.notifier.last(), "still being processed")
	})

	t.Run("configured attempt budget is honored", func(t *testing.T) {
		for _, attempts := range []int{1, 3, 20} {
			h := newHarness(t)
			h.deps.Settings.PollMaxAttempts = attempts
			svc := claimReady(t, h)

			outcome, err := svc.Continue(ctx, testUser, 7, "cconv")
			require.NoError(t, err)
			assert.Equal(t, ClaimOutcomePending, outcome)
			assert.Equal(t, attempts, h.ledger.decisionReads)
		}
	})

	t.Run("read errors count as attempts", func(t *testing.T) {
		h := newHarness(t)
		svc := claimReady(t, h)
		h.ledger.decisionErr = errors.New("rpc timeout")

		outcome, err := svc.Continue(ctx, testUser, 7, "cconv")
		require.NoError(t, err)
		assert.Equal(t, ClaimOutcomePending, outcome)
		assert.Equal(t, 12, h.ledger.decisionReads)
	})

	t.Run("rejected marks status and deletes session without payout", func(t *testing.T) {
		h := newHarness(t)
		svc := claimReady(t, h)
		h.ledger.decisions = []*model.Decision{
			{Timestamp: 0},
			{Timestamp: 1700000100, Approved: false, PayoutAmount: units(t, "0")},
		}

		outcome, err := svc.Continue(ctx, testUser, 7, "cconv")
		require.NoError(t, err)
		assert.Equal(t, ClaimOutcomeRejected, outcome)
		assert.Equal(t, 2, h.ledger.decisionReads)
		assert.Equal(t, model.PolicyStatusClaimRejected, h.ledger.status(7))
		assert.Equal(t, []string{"UpdatePolicyStatus:ClaimRejected"}, h.ledger.writeLog())
		assert.Empty(t, h.ledger.payouts)

		claim, err := h.store.GetClaim(ctx, testUser, 7)
		require.NoError(t, err)
		assert.Nil(t, claim)
	})

	t.Run("approved pays out then marks paid", func(t *testing.T) {
		h := newHarness(t)
		svc := claimReady(t, h)
		h.ledger.decisions = []*model.Decision{{Timestamp: 1700000100, Approved: true, PayoutAmount: units(t, "1200")}}

		outcome, err := svc.Continue(ctx, testUser, 7, "cconv")
		require.NoError(t, err)
		assert.Equal(t, ClaimOutcomePaid, outcome)
		assert.Equal(t, 1, h.ledger.decisionReads)
		assert.Equal(t, []string{"PayOut", "UpdatePolicyStatus:ClaimPaid"}, h.ledger.writeLog())

		balance, _ := h.ledger.TokenBalance(ctx, testWallet)
		assert.Equal(t, 0, balance.Cmp(units(t, "1200")))

		claim, err := h.store.GetClaim(ctx, testUser, 7)
		require.NoError(t, err)
		assert.Nil(t, claim)
	})

	t.Run("settlement failure keeps session", func(t *testing.T) {
		h := newHarness(t)
		svc := claimReady(t, h)
		h.ledger.decisions = []*model.Decision{{Timestamp: 1700000100, Approved: true, PayoutAmount: units(t, "1200")}}
		h.ledger.failOn["UpdatePolicyStatus:ClaimPaid"] = errors.New("reverted")

		_, err := svc.Continue(ctx, testUser, 7, "cconv")
		assert.Equal(t, apperrors.ErrCodeExternal, apperrors.GetCode(err))

		claim, err := h.store.GetClaim(ctx, testUser, 7)
		require.NoError(t, err)
		assert.NotNil(t, claim)
	})

	t.Run("poll survives cancelled request context", func(t *testing.T) {
		h := newHarness(t)
		svc := claimReady(t, h)
		h.ledger.decisions = []*model.Decision{{Timestamp: 0}, {Timestamp: 0}, {Timestamp: 5, Approved: false}}

		reqCtx, cancel := context.WithCancel(ctx)
		svc.sleep = func(time.Duration) { cancel() }

		outcome, err := svc.Continue(reqCtx, testUser, 7, "cconv")
		require.NoError(t, err)
		assert.Equal(t, ClaimOutcomeRejected, outcome)
		assert.Equal(t, 3, h.ledger.decisionReads)
	})

	t.Run("settlement runs under its own deadline", func(t *testing.T) {
		h := newHarness(t)
		ledger := &deadlineLedger{fakeLedger: h.ledger}
		h.deps.Ledger = ledger
		svc := claimReady(t, h)
		h.ledger.decisions = []*model.Decision{{Timestamp: 5, Approved: false}}

		reqCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
		defer cancel()
		svc.sleep = func(time.Duration) { <-reqCtx.Done() }

		start := time.Now()
		outcome, err := svc.Continue(reqCtx, testUser, 7, "cconv")
		require.NoError(t, err)
		assert.Equal(t, ClaimOutcomeRejected, outcome)

		require.Len(t, ledger.deadlines, 1)
		deadline := ledger.deadlines[0]
		assert.True(t, deadline.After(start.Add(config.ClaimSettleTimeout)))
		assert.False(t, deadline.After(time.Now().Add(svc.decisionBudget())))
	})

	t.Run("mismatched conversation id", func(t *testing.T) {
		h := newHarness(t)
		h.verifiedUser(t)
		require.NoError(t, h.store.PutClaim(ctx, &model.ClaimSession{UserID: testUser, PolicyID: 7, ConversationID: "cconv"}))

		_, err := NewClaimService(h.deps).Continue(ctx, testUser, 7, "other")
		assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.GetCode(err))
		assert.Equal(t, 0, h.ledger.decisionReads)
	})

	t.Run("no claim session", func(t *testing.T) {
		h := newHarness(t)
		_, err := NewClaimService(h.deps).Continue(ctx, testUser, 7, "cconv")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("oracle failure submits nothing further", func(t *testing.T) {
		h := newHarness(t)
		h.verifiedUser(t)
		require.NoError(t, h.store.PutClaim(ctx, &model.ClaimSession{UserID: testUser, PolicyID: 7, ConversationID: "cconv"}))
		h.oracle.On("SubmitCase", mock.Anything, mock.Anything).Return(nil, errors.New("502"))

		_, err := NewClaimService(h.deps).Continue(ctx, testUser, 7, "cconv")
		assert.Equal(t, apperrors.ErrCodeExternal, apperrors.GetCode(err))
		assert.Equal(t, 0, h.ledger.decisionReads)
	})

	t.Run("resubmission reuses the same case id", func(t *testing.T) {
		h := newHarness(t)
		svc := claimReady(t, h)
		svc.Settings.PollMaxAttempts = 1

		_, err := svc.Continue(ctx, testUser, 7, "cconv")
		require.NoError(t, err)
		_, err = svc.Continue(ctx, testUser, 7, "cconv")
		require.NoError(t, err)

		h.oracle.AssertNumberOfCalls(t, "SubmitCase", 2)
		first := h.oracle.Calls[0].Arguments.Get(1).(gateway.CaseRequest)
		second := h.oracle.Calls[1].Arguments.Get(1).(gateway.CaseRequest)
		assert.Equal(t, first.CaseID, second.CaseID)
	})
}

// deadlineLedger records the context deadline seen by each status write.
type deadlineLedger struct {
	*fakeLedger
	deadlines []time.Time
}

func (l *deadlineLedger) UpdatePolicyStatus(ctx context.Context, policyID uint64, status model.PolicyStatus) error {
	if d, ok := ctx.Deadline(); ok {
		l.deadlines = append(l.deadlines, d)
	}
	return l.fakeLedger.UpdatePolicyStatus(ctx, policyID, status)
}
