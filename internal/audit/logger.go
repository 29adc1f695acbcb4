package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/events"
)

type EventType string

const (
	EventKYCStarted            EventType = "kyc_started"
	EventKYCVerified           EventType = "kyc_verified"
	EventKYCSetupFailed        EventType = "kyc_setup_failed"
	EventPolicyCreated         EventType = "policy_created"
	EventPremiumPaid           EventType = "premium_paid"
	EventPremiumPartial        EventType = "premium_partial"
	EventClaimFiled            EventType = "claim_filed"
	EventClaimSubmitted        EventType = "claim_submitted"
	EventClaimPending          EventType = "claim_pending"
	EventClaimPaid             EventType = "claim_paid"
	EventClaimRejected         EventType = "claim_rejected"
	EventClaimSettlementFailed EventType = "claim_settlement_failed"
	EventTokensTransferred     EventType = "tokens_transferred"
)

type Event struct {
	Type     EventType
	UserID   string
	PolicyID uint64
	Details  map[string]interface{}
}

// Recorder writes workflow audit lines and forwards them to a publisher.
type Recorder struct {
	publisher events.Publisher
}

func NewRecorder(publisher events.Publisher) *Recorder {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Recorder{publisher: publisher}
}

// Record is safe on a nil Recorder; it then only logs.
func (r *Recorder) Record(ctx context.Context, event Event) {
	id := uuid.NewString()
	now := time.Now()

	logger := log.With().
		Str("audit", "workflow").
		Str("eventType", string(event.Type)).
		Str("eventId", id).
		Time("timestamp", now).
		Logger()

	if event.UserID != "" {
		logger = logger.With().Str("userId", event.UserID).Logger()
	}
	if event.PolicyID != 0 {
		logger = logger.With().Uint64("policyId", event.PolicyID).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("workflow audit event")

	if r == nil {
		return
	}
	err := r.publisher.Publish(ctx, events.Event{
		ID:        id,
		Type:      string(event.Type),
		UserID:    event.UserID,
		PolicyID:  event.PolicyID,
		Details:   event.Details,
		Timestamp: now,
	})
	if err != nil {
		log.Warn().Err(err).Str("eventType", string(event.Type)).Msg("failed to publish audit event")
	}
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case uint64:
		return e.Uint64(key, v)
	case bool:
		return e.Bool(key, v)
	case []string:
		return e.Strs(key, v)
	default:
		return e.Interface(key, v)
	}
}
