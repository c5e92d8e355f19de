package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for the operations API.
// BusinessID scopes every read and every manual reconciliation; super_admin
// may act on another business through an explicit businessId in the request.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string    `json:"user_id"`
	BusinessID string    `json:"business_id"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}
