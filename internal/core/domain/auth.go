package domain

import "time"

// Roles of an API key. Viewers may read settings, admins may also change them.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

type APIKey struct {
	TokenHash string
	TenantID  string
	Name      string
	Role      string
	Active    bool
	CreatedAt time.Time
}

func (k APIKey) CanWrite() bool {
	return k.Role == RoleAdmin
}
