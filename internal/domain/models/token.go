package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenState documents the implicit lifecycle of a session token. It is never
// stored; it is derived from which keys exist in the store.
//
//	Issued -> Registered -> {Active | Blacklisted} -> Expired
type TokenState string

const (
	TokenStateIssued      TokenState = "issued"
	TokenStateRegistered  TokenState = "registered"
	TokenStateActive      TokenState = "active"
	TokenStateBlacklisted TokenState = "blacklisted"
	TokenStateExpired     TokenState = "expired"
)

// BlacklistEntry is the value stored under a revoked token's key. It is written
// once and disappears with its TTL.
type BlacklistEntry struct {
	UserID    string    `json:"userId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionClaims is what the authenticator extracts from a verified token.
type SessionClaims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HashToken returns a stable, non-reversible identifier for a token, suitable
// for logs and audit records.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
