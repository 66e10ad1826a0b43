package auth

import "context"

// APIKeyInfo holds the identity bound to a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Role    Role
}

// Principal returns the caller identity carried by the key.
func (k *APIKeyInfo) Principal() Principal {
	return Principal{UserID: k.UserID, Role: k.Role}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
