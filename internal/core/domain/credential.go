package domain

import "time"

type CredentialState string

const (
	CredentialValid   CredentialState = "VALID"
	CredentialExpired CredentialState = "EXPIRED"
)

type Credential struct {
	Token    string
	IssuedAt time.Time
	TTL      time.Duration
}

// ValidAt reports whether the credential can still be used at now.
func (c Credential) ValidAt(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return now.Before(c.IssuedAt.Add(c.TTL))
}

// ExpiresAt is the first instant the credential is no longer valid.
func (c Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}
