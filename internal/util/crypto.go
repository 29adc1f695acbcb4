package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/sha3"
)

const tokenBytes = 32

func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func HmacSHA256(secret, data string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Keccak256 is the legacy Keccak-256 used by the ledger (not NIST SHA3-256).
func Keccak256(data []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

// TextID hashes a UTF-8 string the way contract tooling derives ids from text.
func TextID(text string) [32]byte {
	return Keccak256([]byte(text))
}

// DeriveCaseID maps a conversation id to the fixed-width (256-bit) oracle case
// id. The mapping is pure, so resubmitting the same conversation always
// targets the same case.
func DeriveCaseID(conversationID string) *big.Int {
	h := TextID(conversationID)
	return new(big.Int).SetBytes(h[:])
}

func MaskID(id string) string {
	if len(id) <= 6 {
		return "******"
	}
	return id[:6] + "..."
}
