package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator verifies a gateway callback token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*GatewayClaims, error)
}

// GatewayClaims represents the claims we expect from a delivery gateway token.
type GatewayClaims struct {
	GatewayID string
}

type contextKeyGatewayID struct{}

// ContextKeyGatewayID is exported for use in handlers.
var ContextKeyGatewayID = contextKeyGatewayID{}

// GetGatewayID retrieves the authenticated gateway ID from the context.
func GetGatewayID(ctx context.Context) string {
	id, ok := ctx.Value(ContextKeyGatewayID).(string)
	if !ok {
		return ""
	}
	return id
}

// RequireGateway rejects callback requests that do not carry a valid signed
// token from the delivery gateway.
func RequireGateway(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "callback rejected - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "callback rejected - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyGatewayID, claims.GatewayID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
