package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
)

// Claims are the only supported JWT claims shape for operator tokens.
// Subject names the operator. An empty Services list means every service.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role"`
	Services  []string  `json:"services,omitempty"`
	TokenType TokenType `json:"token_type"`
}
