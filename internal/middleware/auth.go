package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/inzo/orchestrator-go/internal/errors"
	"github.com/inzo/orchestrator-go/internal/httputil"
	"github.com/inzo/orchestrator-go/internal/util"
)

// BridgeAuthMiddleware admits the transport bridge by a bearer token checked
// against a bcrypt hash.
type BridgeAuthMiddleware struct {
	tokenHash string
}

func NewBridgeAuthMiddleware(tokenHash string) *BridgeAuthMiddleware {
	return &BridgeAuthMiddleware{tokenHash: tokenHash}
}

func (m *BridgeAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokenHash == "" {
			log.Warn().Msg("bridge auth bypassed: BRIDGE_TOKEN_HASH is not configured")
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if !util.CheckPasswordHash(token, m.tokenHash) {
			log.Warn().Str("remoteAddr", r.RemoteAddr).Msg("bridge auth: invalid token attempt")
			httputil.WriteError(w, apperrors.Unauthorized("Invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
