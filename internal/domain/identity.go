package domain

import "time"

type UserID string

// Identity is what the auth service vouches for once a token checks out.
// Bound to a connection on authentication and immutable afterwards.
type Identity struct {
	UserID UserID `json:"userId"`
	Role   Role   `json:"role"`
}

// Session is one issued bearer token's backing record.
type Session struct {
	UserID    UserID
	Role      Role
	ExpiresAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
