package inbound

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Ohseho81/autus-sub014/internal/platform/middleware"
)

// TokenValidator verifies HMAC-signed gateway callback tokens.
type TokenValidator struct {
	signingKey []byte
}

func NewTokenValidator(signingKey string) *TokenValidator {
	return &TokenValidator{signingKey: []byte(signingKey)}
}

type gatewayTokenClaims struct {
	GatewayID string `json:"gateway_id"`
	jwt.RegisteredClaims
}

func (v *TokenValidator) ValidateToken(tokenString string) (*middleware.GatewayClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &gatewayTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse gateway token: %w", err)
	}
	claims, ok := token.Claims.(*gatewayTokenClaims)
	if !ok || !token.Valid || claims.GatewayID == "" {
		return nil, fmt.Errorf("invalid gateway token claims")
	}
	return &middleware.GatewayClaims{GatewayID: claims.GatewayID}, nil
}
