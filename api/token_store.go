package api

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// TokenStore abstracts issued-token bookkeeping so tokens can be held
// in-memory (default) or in persistent backing storage. Tokens are keyed by
// their lookup ID, never by the raw value.
type TokenStore interface {
	// Get returns the record for id. Returns false if the token does not
	// exist or has expired.
	Get(id string) (TokenRecord, bool)
	// Put creates or replaces the record for id.
	Put(id string, rec TokenRecord)
	// Delete removes a token by id.
	Delete(id string)
	// Take removes the record for id and returns it. Of several concurrent
	// callers for the same id at most one gets true.
	Take(id string) (TokenRecord, bool)
	// DeleteFamily removes every token issued under family.
	DeleteFamily(family string)
}

// TokenRecord holds the server-side state for an issued token. Family ties
// an access token to the refresh chain it came from, so logout revokes both.
type TokenRecord struct {
	ID        string    `json:"id"`
	Kind      TokenKind `json:"kind"`
	AccountID string    `json:"account_id"`
	Family    string    `json:"family"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// tokenLookupID returns the hex SHA-256 of a raw token. It is safe to log and
// to use as a map key.
func tokenLookupID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
