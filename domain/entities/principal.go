package entities

import "time"

// RefreshTokenRecord is one member of a principal's active session set. The
// set is persisted as JSON on the principal row and mutated atomically with it.
type RefreshTokenRecord struct {
	JTI       string    `json:"jti"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionSet holds a principal's active refresh tokens.
type SessionSet []RefreshTokenRecord

// Add appends a new record, dropping expired ones while at it.
func (s SessionSet) Add(record RefreshTokenRecord) SessionSet {
	pruned := s.pruneExpired()
	return append(pruned, record)
}

// Consume removes the record with the presented jti. The second return is
// false when the jti is not in the set, which is how a replayed refresh token
// is recognized.
func (s SessionSet) Consume(jti string) (SessionSet, bool) {
	pruned := s.pruneExpired()
	for i, record := range pruned {
		if record.JTI == jti {
			return append(pruned[:i:i], pruned[i+1:]...), true
		}
	}
	return pruned, false
}

func (s SessionSet) pruneExpired() SessionSet {
	now := time.Now()
	out := make(SessionSet, 0, len(s))
	for _, record := range s {
		if record.ExpiresAt.After(now) {
			out = append(out, record)
		}
	}
	return out
}

// User is an end-user principal.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	PasswordHash  string         `json:"-"`
	RefreshTokens SessionSet     `json:"-"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LastLogin     *time.Time     `json:"last_login,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	LastRevokedAt *time.Time     `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Admin is an administrative principal. Admins are not users.
type Admin struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"-"`
	RefreshTokens SessionSet `json:"-"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	LastRevokedAt *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
