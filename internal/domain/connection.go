// Package domain contains entities without logic, just meta-data.
package domain

import "github.com/google/uuid"

// ConnID is the addressable handle of one live transport connection.
// Generated at connect time, stable for the socket's lifetime.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

type Role string

const (
	RoleCamera Role = "camera"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	return r == RoleCamera || r == RoleViewer
}

const MaxCameraNameLen = 64
