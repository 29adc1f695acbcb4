package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SessionStore    string `env:"SESSION_STORE" envDefault:"memory"`
	DatabaseURL     string `env:"DATABASE_URL"`
	RedisURL        string `env:"REDIS_URL"`
	SessionTTLHours int    `env:"SESSION_TTL_HOURS" envDefault:"720"`
	EncryptionKey   string `env:"ENCRYPTION_KEY"`

	WebhookSecret   string `env:"WEBHOOK_SECRET"`
	BridgeTokenHash string `env:"BRIDGE_TOKEN_HASH"`
	RateLimitPerMin int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"inzo.workflow"`

	PersonaAPIKey  string `env:"PERSONA_API_KEY"`
	PersonaBaseURL string `env:"PERSONA_BASE_URL" envDefault:"https://withpersona.com/api/v1"`
	PersonaVersion string `env:"PERSONA_VERSION" envDefault:"2021-05-14"`

	TavusAPIKey        string `env:"TAVUS_API_KEY"`
	TavusBaseURL       string `env:"TAVUS_BASE_URL" envDefault:"https://tavusapi.com/v2"`
	TavusReplicaID     string `env:"TAVUS_REPLICA_ID"`
	TavusReplicaKYC    string `env:"TAVUS_REPLICA_ID_KYC"`
	TavusReplicaPolicy string `env:"TAVUS_REPLICA_ID_POLICY"`
	TavusReplicaClaim  string `env:"TAVUS_REPLICA_ID_CLAIM"`

	OracleEndpoint string `env:"ORACLE_ENDPOINT"`

	RPCURL             string `env:"RPC_URL"`
	OraclePrivateKey   string `env:"ORACLE_PRIVATE_KEY"`
	DeployerPrivateKey string `env:"DEPLOYER_PRIVATE_KEY"`
	OracleRelayAddress string `env:"CLAIMORACLERELAY_CONTRACT_ADDRESS"`
	PolicyLedgerAddr   string `env:"POLICYLEDGER_CONTRACT_ADDRESS"`
	TokenAddress       string `env:"INZOUSD_CONTRACT_ADDRESS"`
	FundManagerAddress string `env:"INSURANCEFUNDMANAGER_CONTRACT_ADDRESS"`

	ClaimPollIntervalMS   int    `env:"CLAIM_POLL_INTERVAL_MS" envDefault:"5000"`
	ClaimPollMaxAttempts  int    `env:"CLAIM_POLL_MAX_ATTEMPTS" envDefault:"12"`
	InitialTokenGrant     string `env:"INITIAL_TOKEN_GRANT" envDefault:"3000"`
	PremiumGasThreshold   string `env:"PREMIUM_GAS_THRESHOLD" envDefault:"0.2"`
	TransferGasThreshold  string `env:"TRANSFER_GAS_THRESHOLD" envDefault:"0.1"`
	TokenSymbol           string `env:"TOKEN_SYMBOL" envDefault:"InzoUSD"`
	GasSymbol             string `env:"GAS_SYMBOL" envDefault:"WND"`
	ApplicationTTLMinutes int    `env:"APPLICATION_TTL_MINUTES" envDefault:"1440"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SessionTTL bounds transient Redis keys: applications and expected inputs.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) ClaimPollInterval() time.Duration {
	return time.Duration(c.ClaimPollIntervalMS) * time.Millisecond
}

func (c *Config) ApplicationTTL() time.Duration {
	return time.Duration(c.ApplicationTTLMinutes) * time.Minute
}

// ReplicaKYC returns the persona used for KYC interviews, falling back to the
// shared replica.
func (c *Config) ReplicaKYC() string {
	return firstNonEmpty(c.TavusReplicaKYC, c.TavusReplicaID)
}

func (c *Config) ReplicaPolicy() string {
	return firstNonEmpty(c.TavusReplicaPolicy, c.TavusReplicaID)
}

func (c *Config) ReplicaClaim() string {
	return firstNonEmpty(c.TavusReplicaClaim, c.TavusReplicaID)
}

func (c *Config) Validate(isProduction bool) error {
	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_STORE=postgres")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of memory, redis, postgres (got %q)", c.SessionStore)
	}

	if c.BridgeTokenHash != "" {
		if !strings.HasPrefix(c.BridgeTokenHash, "$2a$") &&
			!strings.HasPrefix(c.BridgeTokenHash, "$2b$") &&
			!strings.HasPrefix(c.BridgeTokenHash, "$2y$") {
			return fmt.Errorf("BRIDGE_TOKEN_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <token>)")
		}
	}

	if c.ClaimPollMaxAttempts < 1 {
		return fmt.Errorf("CLAIM_POLL_MAX_ATTEMPTS must be at least 1")
	}
	if c.ClaimPollIntervalMS < 0 {
		return fmt.Errorf("CLAIM_POLL_INTERVAL_MS must not be negative")
	}

	required := map[string]string{
		"RPC_URL":                               c.RPCURL,
		"ORACLE_PRIVATE_KEY":                    c.OraclePrivateKey,
		"DEPLOYER_PRIVATE_KEY":                  c.DeployerPrivateKey,
		"CLAIMORACLERELAY_CONTRACT_ADDRESS":     c.OracleRelayAddress,
		"POLICYLEDGER_CONTRACT_ADDRESS":         c.PolicyLedgerAddr,
		"INZOUSD_CONTRACT_ADDRESS":              c.TokenAddress,
		"INSURANCEFUNDMANAGER_CONTRACT_ADDRESS": c.FundManagerAddress,
		"PERSONA_API_KEY":                       c.PersonaAPIKey,
		"TAVUS_API_KEY":                         c.TavusAPIKey,
		"ORACLE_ENDPOINT":                       c.OracleEndpoint,
	}
	for _, name := range requiredOrder {
		if required[name] == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if c.TavusReplicaID == "" && (c.TavusReplicaKYC == "" || c.TavusReplicaPolicy == "" || c.TavusReplicaClaim == "") {
		return fmt.Errorf("TAVUS_REPLICA_ID is required unless every per-workflow replica is set")
	}

	if isProduction {
		if err := validateSecret("WEBHOOK_SECRET", c.WebhookSecret); err != nil {
			return err
		}
		if c.BridgeTokenHash == "" {
			log.Warn().Msg("BRIDGE_TOKEN_HASH is empty in production: notification stream is unauthenticated")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.SessionStore != StoreMemory && c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: wallet secrets will not be encrypted at rest")
		}
		if c.SessionStore == StoreMemory {
			log.Warn().Msg("SESSION_STORE=memory in production: sessions are lost on restart")
		}
	}

	return nil
}

var requiredOrder = []string{
	"RPC_URL",
	"ORACLE_PRIVATE_KEY",
	"DEPLOYER_PRIVATE_KEY",
	"CLAIMORACLERELAY_CONTRACT_ADDRESS",
	"POLICYLEDGER_CONTRACT_ADDRESS",
	"INZOUSD_CONTRACT_ADDRESS",
	"INSURANCEFUNDMANAGER_CONTRACT_ADDRESS",
	"PERSONA_API_KEY",
	"TAVUS_API_KEY",
	"ORACLE_ENDPOINT",
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
