package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const SweepJobInterval = 5 * time.Minute

// Outbound calls to identity, conversation and oracle providers
const GatewayTimeout = 30 * time.Second

// Ledger calls wait for the receipt of each transaction
const LedgerTxTimeout = 3 * time.Minute

// Inbound events run detached from the webhook request. The deadline bounds
// every step up to a claim's case submission.
const EventTimeout = 10 * time.Minute

// A submitted claim polls and settles outside the event deadline, bounded by
// the polling budget plus this allowance for the read_policy, pay_out and
// mark_paid steps.
const ClaimSettleTimeout = 3 * LedgerTxTimeout

// Policy terms
const (
	PremiumPercent  = 5
	PolicyTermDays  = 365
	DefaultRiskTier = 0
)
