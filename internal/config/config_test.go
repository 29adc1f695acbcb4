package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		SessionStore:         StoreMemory,
		RPCURL:               "http://localhost:8545",
		OraclePrivateKey:     "0x01",
		DeployerPrivateKey:   "0x02",
		OracleRelayAddress:   "0x0000000000000000000000000000000000000001",
		PolicyLedgerAddr:     "0x0000000000000000000000000000000000000002",
		TokenAddress:         "0x0000000000000000000000000000000000000003",
		FundManagerAddress:   "0x0000000000000000000000000000000000000004",
		PersonaAPIKey:        "persona",
		TavusAPIKey:          "tavus",
		TavusReplicaID:       "r-shared",
		OracleEndpoint:       "http://oracle.local/claims",
		ClaimPollIntervalMS:  5000,
		ClaimPollMaxAttempts: 12,
	}
}

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("ClaimPollInterval converts milliseconds to duration", func(t *testing.T) {
		cfg := &Config{ClaimPollIntervalMS: 5000}
		assert.Equal(t, 5*time.Second, cfg.ClaimPollInterval())
	})

	t.Run("ApplicationTTL converts minutes to duration", func(t *testing.T) {
		cfg := &Config{ApplicationTTLMinutes: 60}
		assert.Equal(t, time.Hour, cfg.ApplicationTTL())
	})

	t.Run("replicas fall back to shared id", func(t *testing.T) {
		cfg := &Config{TavusReplicaID: "shared", TavusReplicaClaim: "claims"}
		assert.Equal(t, "shared", cfg.ReplicaKYC())
		assert.Equal(t, "shared", cfg.ReplicaPolicy())
		assert.Equal(t, "claims", cfg.ReplicaClaim())
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults", func(t *testing.T) {
		unsetEnv(t, "PORT", "SESSION_STORE", "CLAIM_POLL_INTERVAL_MS", "CLAIM_POLL_MAX_ATTEMPTS",
			"INITIAL_TOKEN_GRANT", "PREMIUM_GAS_THRESHOLD", "TRANSFER_GAS_THRESHOLD",
			"TOKEN_SYMBOL", "PERSONA_VERSION", "LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, StoreMemory, cfg.SessionStore)
		assert.Equal(t, 5000, cfg.ClaimPollIntervalMS)
		assert.Equal(t, 12, cfg.ClaimPollMaxAttempts)
		assert.Equal(t, "3000", cfg.InitialTokenGrant)
		assert.Equal(t, "0.2", cfg.PremiumGasThreshold)
		assert.Equal(t, "0.1", cfg.TransferGasThreshold)
		assert.Equal(t, "InzoUSD", cfg.TokenSymbol)
		assert.Equal(t, "2021-05-14", cfg.PersonaVersion)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		t.Setenv("PORT", "3000")
		t.Setenv("SESSION_STORE", "redis")
		t.Setenv("CLAIM_POLL_MAX_ATTEMPTS", "3")
		t.Setenv("TAVUS_REPLICA_ID_KYC", "r-kyc")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, StoreRedis, cfg.SessionStore)
		assert.Equal(t, 3, cfg.ClaimPollMaxAttempts)
		assert.Equal(t, "r-kyc", cfg.TavusReplicaKYC)
	})

	t.Run("fails on malformed integer", func(t *testing.T) {
		t.Setenv("CLAIM_POLL_MAX_ATTEMPTS", "many")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("accepts complete config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate(false))
	})

	t.Run("requires redis url for redis store", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore = StoreRedis
		assert.ErrorContains(t, cfg.Validate(false), "REDIS_URL")
	})

	t.Run("requires database url for postgres store", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore = StorePostgres
		assert.ErrorContains(t, cfg.Validate(false), "DATABASE_URL")
	})

	t.Run("rejects unknown store", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore = "dynamo"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects missing ledger address", func(t *testing.T) {
		cfg := validConfig()
		cfg.PolicyLedgerAddr = ""
		assert.ErrorContains(t, cfg.Validate(false), "POLICYLEDGER_CONTRACT_ADDRESS")
	})

	t.Run("rejects non-bcrypt bridge hash", func(t *testing.T) {
		cfg := validConfig()
		cfg.BridgeTokenHash = "plaintext"
		assert.ErrorContains(t, cfg.Validate(false), "BRIDGE_TOKEN_HASH")
	})

	t.Run("rejects zero poll attempts", func(t *testing.T) {
		cfg := validConfig()
		cfg.ClaimPollMaxAttempts = 0
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("requires shared replica when a workflow replica is missing", func(t *testing.T) {
		cfg := validConfig()
		cfg.TavusReplicaID = ""
		cfg.TavusReplicaKYC = "k"
		assert.ErrorContains(t, cfg.Validate(false), "TAVUS_REPLICA_ID")

		cfg.TavusReplicaPolicy = "p"
		cfg.TavusReplicaClaim = "c"
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("production requires strong webhook secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.WebhookSecret = "secret"
		assert.ErrorContains(t, cfg.Validate(true), "WEBHOOK_SECRET")

		cfg.WebhookSecret = "0123456789abcdef0123456789abcdef"
		assert.NoError(t, cfg.Validate(true))
	})
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		}
		os.Unsetenv(k)
	}
}
