// Package security implements the gateway security core: principal
// authentication (JWT and API key), role-based authorization, per-principal
// rate limiting, failed-authentication lockout, input sanitization and
// periodic threat analysis over the audit ring.
package security

import (
	"fmt"
	"time"
)

// Role is an authorization level. Roles form a total order:
// readonly < operator < admin < system.
type Role int

const (
	RoleReadonly Role = iota
	RoleOperator
	RoleAdmin
	RoleSystem
)

// ParseRole converts a configuration role name to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "readonly":
		return RoleReadonly, nil
	case "operator":
		return RoleOperator, nil
	case "admin":
		return RoleAdmin, nil
	case "system":
		return RoleSystem, nil
	default:
		return RoleReadonly, fmt.Errorf("unknown role %q", s)
	}
}

// String returns the configuration name of the role.
func (r Role) String() string {
	switch r {
	case RoleReadonly:
		return "readonly"
	case RoleOperator:
		return "operator"
	case RoleAdmin:
		return "admin"
	case RoleSystem:
		return "system"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// AtLeast reports whether r satisfies the minimum role min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// CredentialKind identifies how a principal authenticated.
type CredentialKind string

const (
	CredentialJWT    CredentialKind = "jwt"
	CredentialAPIKey CredentialKind = "api_key"
)

// Principal is the authenticated identity behind a request. Materialized per
// request from credential material; never persisted.
type Principal struct {
	ID             string
	Role           Role
	CredentialKind CredentialKind
	ExpiresAt      *time.Time
	AllowedIPs     []string
}
