package util

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates 64 character hex string", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, _ := GenerateToken()
		token2, _ := GenerateToken()
		assert.NotEqual(t, token1, token2)
	})
}

func TestHmacSHA256(t *testing.T) {
	t.Run("different secret produces different result", func(t *testing.T) {
		result1 := HmacSHA256("secret1", "data")
		result2 := HmacSHA256("secret2", "data")
		assert.NotEqual(t, result1, result2)
	})

	t.Run("produces expected HMAC", func(t *testing.T) {
		result := HmacSHA256("key", "The quick brown fox jumps over the lazy dog")
		assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", result)
	})
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "def"))
	assert.False(t, ConstantTimeEqual("abc", "abcd"))
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("bridge-token"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("bridge-token", string(hash)))
	assert.False(t, CheckPasswordHash("other-token", string(hash)))
	assert.False(t, CheckPasswordHash("bridge-token", "not-a-hash"))
}

func TestKeccak256(t *testing.T) {
	t.Run("empty input matches known vector", func(t *testing.T) {
		h := Keccak256(nil)
		assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", hex.EncodeToString(h[:]))
	})

	t.Run("event signature matches known topic", func(t *testing.T) {
		h := TextID("Transfer(address,address,uint256)")
		assert.Equal(t, "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", hex.EncodeToString(h[:]))
	})
}

func TestDeriveCaseID(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a := DeriveCaseID("c123")
		b := DeriveCaseID("c123")
		assert.Equal(t, 0, a.Cmp(b))
	})

	t.Run("differs per conversation", func(t *testing.T) {
		a := DeriveCaseID("c123")
		b := DeriveCaseID("c124")
		assert.NotEqual(t, 0, a.Cmp(b))
	})

	t.Run("fits in 256 bits", func(t *testing.T) {
		assert.LessOrEqual(t, DeriveCaseID("c123").BitLen(), 256)
	})
}

func TestMaskID(t *testing.T) {
	assert.Equal(t, "******", MaskID("abc"))
	assert.Equal(t, "abcdef...", MaskID("abcdefghij"))
}
