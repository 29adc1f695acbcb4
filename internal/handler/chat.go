package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/config"
	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/httputil"
	"github.com/inzo/orchestrator-go/internal/middleware"
	"github.com/inzo/orchestrator-go/internal/model"
	"github.com/inzo/orchestrator-go/internal/service"
	"github.com/inzo/orchestrator-go/internal/util"
)

const (
	genericApology = "Sorry, something went wrong. Please try again in a moment."

	retryAfterSeconds = 60
)

type KYCWorkflow interface {
	Start(ctx context.Context, user model.UserID) error
	CheckStatus(ctx context.Context, user model.UserID) error
	CompleteInterview(ctx context.Context, user model.UserID, conversationID string) error
}

type PolicyWorkflow interface {
	Apply(ctx context.Context, user model.UserID) error
	Answer(ctx context.Context, user model.UserID, text string) error
	Complete(ctx context.Context, user model.UserID, conversationID string) error
	List(ctx context.Context, user model.UserID) error
	View(ctx context.Context, user model.UserID, policyID uint64) error
}

type PremiumWorkflow interface {
	Pay(ctx context.Context, user model.UserID, policyID uint64) error
}

type ClaimWorkflow interface {
	File(ctx context.Context, user model.UserID, policyID uint64) error
	SubmitDescription(ctx context.Context, user model.UserID, policyID uint64, text string) error
	Continue(ctx context.Context, user model.UserID, policyID uint64, conversationID string) (service.ClaimOutcome, error)
}

type WalletWorkflow interface {
	Show(ctx context.Context, user model.UserID) error
	Transfer(ctx context.Context, user model.UserID, to, amount string) error
}

// Workflows groups the services the chat driver dispatches to.
type Workflows struct {
	KYC     KYCWorkflow
	Policy  PolicyWorkflow
	Premium PremiumWorkflow
	Claim   ClaimWorkflow
	Wallet  WalletWorkflow
	Help    func(ctx context.Context, user model.UserID)
}

type InputReader interface {
	GetExpectedInput(ctx context.Context, user model.UserID) (*model.ExpectedInput, error)
}

// InboundEvent is one chat message delivered by the bridge.
type InboundEvent struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
	Text    string `json:"text"`
}

// ChatHandler accepts chat events and runs each one on its own goroutine,
// detached from the webhook request.
type ChatHandler struct {
	flows    Workflows
	inputs   InputReader
	notifier service.Notifier
	limiter  middleware.UserLimiter
	limit    int
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewChatHandler(
	flows Workflows,
	inputs InputReader,
	notifier service.Notifier,
	limiter middleware.UserLimiter,
	limitPerMin int,
) *ChatHandler {
	return &ChatHandler{
		flows:    flows,
		inputs:   inputs,
		notifier: notifier,
		limiter:  limiter,
		limit:    limitPerMin,
		timeout:  config.EventTimeout,
	}
}

// POST /chat/webhook
func (h *ChatHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var ev InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		log.Warn().Err(err).Msg("invalid chat webhook request")
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	if ev.UserID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("userId"))
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	if h.limiter != nil && h.limit > 0 {
		allowed, remaining, resetAt := h.limiter.Check(r.Context(), ev.UserID, h.limit)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
		if !allowed {
			log.Warn().Str("userId", ev.UserID).Msg("chat event rate limited")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			httputil.WriteError(w, apperrors.RateLimitExceeded().WithDetails(map[string]any{
				"limit":      h.limit,
				"resetAt":    resetAt,
				"retryAfter": retryAfterSeconds,
			}))
			return
		}
	}

	log.Info().
		Str("eventId", ev.EventID).
		Str("userId", ev.UserID).
		Str("text", truncate(ev.Text, 50)).
		Msg("received chat event")

	ctx := context.WithoutCancel(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Dispatch(ctx, ev)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"eventId": ev.EventID})
}

// Dispatch runs one event to completion. Workflow errors are reported to the
// user; panics are logged and never escape.
func (h *ChatHandler) Dispatch(ctx context.Context, ev InboundEvent) {
	user := model.UserID(ev.UserID)
	logger := log.With().Str("eventId", ev.EventID).Str("userId", ev.UserID).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("chat event panicked")
			h.reply(ctx, user, genericApology)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.route(ctx, user, ev.Text); err != nil {
		event := logger.Warn()
		if _, ok := apperrors.AsAppError(err); !ok || apperrors.GetCode(err) == apperrors.ErrCodeInternal {
			event = logger.Error()
		}
		event.Err(err).Str("code", string(apperrors.GetCode(err))).Msg("chat event failed")
		h.reply(ctx, user, apperrors.UserMessage(err, genericApology))
	}
}

// Wait blocks until every in-flight event finishes or ctx is done.
func (h *ChatHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *ChatHandler) route(ctx context.Context, user model.UserID, text string) error {
	cmd := parseCommand(text)
	if cmd == nil {
		return h.handleFreeText(ctx, user, text)
	}

	switch cmd.Name {
	case CmdStart, CmdHelp:
		h.flows.Help(ctx, user)
		return nil

	case CmdKYC:
		return h.flows.KYC.Start(ctx, user)
	case CmdNextDocStep:
		return h.flows.KYC.CheckStatus(ctx, user)
	case CmdCompleteInterview:
		if len(cmd.Args) < 1 {
			return usage("/complete_kyc_interview <conversation_id>")
		}
		return h.flows.KYC.CompleteInterview(ctx, user, cmd.Args[0])

	case CmdMyWallet:
		return h.flows.Wallet.Show(ctx, user)
	case CmdTransfer:
		if len(cmd.Args) < 2 {
			return usage("/transfer_inzousd <address> <amount>")
		}
		return h.flows.Wallet.Transfer(ctx, user, cmd.Args[0], cmd.Args[1])

	case CmdApplyPolicy:
		return h.flows.Policy.Apply(ctx, user)
	case CmdCompleteApplication:
		if len(cmd.Args) < 1 {
			return usage("/complete_policy_application <conversation_id>")
		}
		return h.flows.Policy.Complete(ctx, user, cmd.Args[0])
	case CmdMyPolicies:
		return h.flows.Policy.List(ctx, user)
	case CmdViewPolicy:
		id, err := policyArg(cmd.Args, "/view_policy <policy_id>")
		if err != nil {
			return err
		}
		return h.flows.Policy.View(ctx, user, id)

	case CmdPayPremium:
		id, err := policyArg(cmd.Args, "/pay_premium <policy_id>")
		if err != nil {
			return err
		}
		return h.flows.Premium.Pay(ctx, user, id)

	case CmdFileClaim:
		id, err := policyArg(cmd.Args, "/file_claim <policy_id>")
		if err != nil {
			return err
		}
		return h.flows.Claim.File(ctx, user, id)
	case CmdContinueClaim:
		id, err := policyArg(cmd.Args, "/continue_claim <policy_id> <conversation_id>")
		if err != nil {
			return err
		}
		if len(cmd.Args) < 2 {
			return usage("/continue_claim <policy_id> <conversation_id>")
		}
		outcome, err := h.flows.Claim.Continue(ctx, user, id, cmd.Args[1])
		if err != nil {
			return err
		}
		log.Info().Str("userId", string(user)).Uint64("policyId", id).Str("outcome", string(outcome)).Msg("claim continued")
		return nil

	default:
		h.reply(ctx, user, "Unknown command. Send /help to see what I can do.")
		return nil
	}
}

func (h *ChatHandler) handleFreeText(ctx context.Context, user model.UserID, text string) error {
	expected, err := h.inputs.GetExpectedInput(ctx, user)
	if err != nil {
		return apperrors.Database(err)
	}
	if expected == nil {
		h.reply(ctx, user, "I didn't catch that. Send /help to see the available commands.")
		return nil
	}

	switch expected.Kind {
	case model.InputKindPolicyAnswer:
		return h.flows.Policy.Answer(ctx, user, text)
	case model.InputKindClaimDescription:
		return h.flows.Claim.SubmitDescription(ctx, user, expected.PolicyID, text)
	default:
		log.Warn().Str("userId", string(user)).Str("kind", string(expected.Kind)).Msg("unknown expected input kind")
		h.reply(ctx, user, "I didn't catch that. Send /help to see the available commands.")
		return nil
	}
}

func (h *ChatHandler) reply(ctx context.Context, user model.UserID, text string) {
	if err := h.notifier.Notify(ctx, user, text); err != nil {
		log.Warn().Err(err).Str("userId", string(user)).Msg("failed to send chat reply")
	}
}

func usage(form string) error {
	return apperrors.InvalidInput("Usage: " + form)
}

func policyArg(args []string, form string) (uint64, error) {
	if len(args) < 1 {
		return 0, usage(form)
	}
	id, err := util.ParsePolicyID(args[0])
	if err != nil {
		return 0, apperrors.InvalidInput("Policy id must be a number. Usage: " + form)
	}
	return id, nil
}
