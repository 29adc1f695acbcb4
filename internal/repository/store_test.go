package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inzo/orchestrator-go/internal/model"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// runStoreContract exercises behavior every SessionStore backend must share.
// user should be unique per run so live backends do not collide.
func runStoreContract(t *testing.T, store SessionStore, user model.UserID) {
	ctx := context.Background()

	t.Run("missing sessions read as nil", func(t *testing.T) {
		kyc, err := store.GetKYC(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, kyc)

		app, err := store.GetApplication(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, app)

		claim, err := store.GetClaim(ctx, user, 1)
		require.NoError(t, err)
		assert.Nil(t, claim)

		in, err := store.GetExpectedInput(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, in)
	})

	t.Run("kyc round trip keeps wallet secret", func(t *testing.T) {
		s := model.NewKYCSession(user)
		s.Status = model.KYCStatusVerifiedOnChain
		s.InquiryID = "inq_1"
		require.NoError(t, s.SetWallet("0x52908400098527886E0F7030069857D2E4169EE7", "0xsecret"))
		require.NoError(t, store.PutKYC(ctx, s))

		got, err := store.GetKYC(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.KYCStatusVerifiedOnChain, got.Status)
		assert.Equal(t, "inq_1", got.InquiryID)
		assert.Equal(t, s.WalletAddress, got.WalletAddress)
		assert.Equal(t, "0xsecret", got.WalletSecret.Reveal())

		require.NoError(t, store.DeleteKYC(ctx, user))
		got, err = store.GetKYC(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("application round trip", func(t *testing.T) {
		app := model.NewPolicyApplication(user)
		require.NoError(t, app.Answer("Car", 3))
		require.NoError(t, store.PutApplication(ctx, app))

		got, err := store.GetApplication(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []string{"Car"}, got.Answers)
		assert.Equal(t, 1, got.Step())

		got.Answers = append(got.Answers, "mutated")
		again, err := store.GetApplication(ctx, user)
		require.NoError(t, err)
		assert.Len(t, again.Answers, 1)

		require.NoError(t, store.DeleteApplication(ctx, user))
	})

	t.Run("claims are keyed by policy", func(t *testing.T) {
		require.NoError(t, store.PutClaim(ctx, &model.ClaimSession{UserID: user, PolicyID: 7, Description: "hail", CreatedAt: time.Now()}))
		require.NoError(t, store.PutClaim(ctx, &model.ClaimSession{UserID: user, PolicyID: 8, Description: "flood", CreatedAt: time.Now()}))

		c7, err := store.GetClaim(ctx, user, 7)
		require.NoError(t, err)
		require.NotNil(t, c7)
		assert.Equal(t, "hail", c7.Description)

		require.NoError(t, store.DeleteClaim(ctx, user, 7))
		c7, err = store.GetClaim(ctx, user, 7)
		require.NoError(t, err)
		assert.Nil(t, c7)

		c8, err := store.GetClaim(ctx, user, 8)
		require.NoError(t, err)
		require.NotNil(t, c8)
		assert.Equal(t, "flood", c8.Description)

		require.NoError(t, store.DeleteClaim(ctx, user, 8))
	})

	t.Run("stale applications and inputs are swept", func(t *testing.T) {
		old := time.Now().Add(-2 * time.Hour)
		app := model.NewPolicyApplication(user)
		app.CreatedAt = old
		require.NoError(t, store.PutApplication(ctx, app))
		require.NoError(t, store.PutExpectedInput(ctx, &model.ExpectedInput{UserID: user, Kind: model.InputKindPolicyAnswer, CreatedAt: old}))

		n, err := store.DeleteStaleApplications(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		n, err = store.DeleteStaleExpectedInputs(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		got, err := store.GetApplication(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, got)
		in, err := store.GetExpectedInput(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, in)
	})

	t.Run("fresh applications survive the sweep", func(t *testing.T) {
		require.NoError(t, store.PutApplication(ctx, model.NewPolicyApplication(user)))

		_, err := store.DeleteStaleApplications(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		got, err := store.GetApplication(ctx, user)
		require.NoError(t, err)
		assert.NotNil(t, got)
		require.NoError(t, store.DeleteApplication(ctx, user))
	})
}

func TestCodec(t *testing.T) {
	session := model.NewKYCSession("u1")
	require.NoError(t, session.SetWallet("0xabc", "0xtopsecret"))

	t.Run("seals wallet secret when key is set", func(t *testing.T) {
		c, err := newCodec(testEncryptionKey)
		require.NoError(t, err)

		data, err := c.encodeKYC(session)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "topsecret")

		got, err := c.decodeKYC(data)
		require.NoError(t, err)
		assert.Equal(t, "0xtopsecret", got.WalletSecret.Reveal())
		assert.Equal(t, "0xabc", got.WalletAddress)
	})

	t.Run("stores plain secret without key", func(t *testing.T) {
		data, err := codec{}.encodeKYC(session)
		require.NoError(t, err)

		got, err := codec{}.decodeKYC(data)
		require.NoError(t, err)
		assert.Equal(t, "0xtopsecret", got.WalletSecret.Reveal())
	})

	t.Run("refuses sealed secret without key", func(t *testing.T) {
		c, _ := newCodec(testEncryptionKey)
		data, _ := c.encodeKYC(session)

		_, err := codec{}.decodeKYC(data)
		assert.Error(t, err)
	})

	t.Run("rejects malformed key", func(t *testing.T) {
		_, err := newCodec("short")
		assert.Error(t, err)
	})
}
