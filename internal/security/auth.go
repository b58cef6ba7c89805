package security

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/metrics"
)

// Claims carries the gateway's JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Credentials is the raw credential material attached to a request. Exactly
// one of Token or APIKey is expected; when both are present the API key is
// checked first.
type Credentials struct {
	Token  string
	APIKey string
}

type staticUser struct {
	id         string
	role       Role
	credential string
	expiresAt  *time.Time
	allowedIPs []string
}

// Authenticator validates credentials against configured users and the JWT
// signing secret, enforcing IP restrictions and lockout policy.
type Authenticator struct {
	jwtSecret  []byte
	users      []staticUser
	allowedIPs []string
	blockedIPs []string

	lockout *Lockout
	auditor audit.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// NewAuthenticator builds an authenticator from the security configuration.
func NewAuthenticator(cfg *config.Config, lockout *Lockout, auditor audit.Logger, reg *metrics.Registry) (*Authenticator, error) {
	users := make([]staticUser, 0, len(cfg.Security.Users))
	for _, u := range cfg.Security.Users {
		role, err := ParseRole(u.Role)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		su := staticUser{
			id:         u.ID,
			role:       role,
			credential: u.Credential,
			allowedIPs: u.AllowedIPs,
		}
		if u.ExpiresAt != "" {
			ts, err := time.Parse(time.RFC3339, u.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("user %s: parsing expires_at: %w", u.ID, err)
			}
			su.expiresAt = &ts
		}
		users = append(users, su)
	}

	return &Authenticator{
		jwtSecret:  []byte(cfg.Security.JWTSecret),
		users:      users,
		allowedIPs: cfg.Security.AllowedIPs,
		blockedIPs: cfg.Security.BlockedIPs,
		lockout:    lockout,
		auditor:    auditor,
		metrics:    reg,
		now:        time.Now,
	}, nil
}

// Authenticate resolves credentials into a Principal. Failures are recorded
// against the lockout tracker except for expired tokens, which identify a
// legitimate principal whose session ran out.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials, sourceIP string) (*Principal, error) {
	if sourceIP != "" {
		if matchesIPList(sourceIP, a.blockedIPs) {
			a.recordDenied(ctx, "", sourceIP, "source address blocked")
			return nil, fault.New(fault.KindForbidden, "source address blocked")
		}
		if len(a.allowedIPs) > 0 && !matchesIPList(sourceIP, a.allowedIPs) {
			a.recordDenied(ctx, "", sourceIP, "source address not allowed")
			return nil, fault.New(fault.KindForbidden, "source address not allowed")
		}
	}

	credentialID := credentialHint(creds)
	if locked, remaining := a.lockout.Locked(credentialID, sourceIP); locked {
		a.emitSecurity(ctx, audit.EventAuthFailed, audit.SeverityHigh, credentialID, sourceIP, "authentication attempt during lockout")
		return nil, fault.New(fault.KindLockedOut, "too many failed attempts").
			WithRetryAfter(remaining)
	}

	if creds.APIKey != "" {
		p, err := a.authenticateAPIKey(creds.APIKey, sourceIP)
		a.finish(ctx, p, err, credentialID, sourceIP, false)
		return p, err
	}
	if creds.Token != "" {
		p, expired, err := a.authenticateJWT(creds.Token, sourceIP)
		a.finish(ctx, p, err, credentialID, sourceIP, expired)
		return p, err
	}

	a.lockout.RecordFailure(credentialID, sourceIP)
	a.emitSecurity(ctx, audit.EventAuthFailed, audit.SeverityMedium, "", sourceIP, "no credentials supplied")
	return nil, fault.New(fault.KindUnauthorized, "missing credentials")
}

func (a *Authenticator) authenticateAPIKey(key string, sourceIP string) (*Principal, error) {
	for i := range a.users {
		u := &a.users[i]
		if u.credential == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(u.credential), []byte(key)) != 1 {
			continue
		}
		if u.expiresAt != nil && a.now().After(*u.expiresAt) {
			return nil, fault.Newf(fault.KindUnauthorized, "credential for %s expired", u.id)
		}
		if len(u.allowedIPs) > 0 && sourceIP != "" && !matchesIPList(sourceIP, u.allowedIPs) {
			return nil, fault.Newf(fault.KindForbidden, "principal %s not allowed from this address", u.id)
		}
		return &Principal{
			ID:             u.id,
			Role:           u.role,
			CredentialKind: CredentialAPIKey,
			ExpiresAt:      u.expiresAt,
			AllowedIPs:     u.allowedIPs,
		}, nil
	}
	return nil, fault.New(fault.KindUnauthorized, "unknown API key")
}

// authenticateJWT validates an HS256-signed token. The second return value
// reports whether the failure was an expired but otherwise valid token.
func (a *Authenticator) authenticateJWT(tokenString string, sourceIP string) (*Principal, bool, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, true, fault.New(fault.KindUnauthorized, "token expired")
		}
		return nil, false, fault.Wrap(fault.KindUnauthorized, "invalid token", err)
	}
	if !token.Valid {
		return nil, false, fault.New(fault.KindUnauthorized, "invalid token")
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, false, fault.Wrap(fault.KindUnauthorized, "token carries unknown role", err)
	}

	p := &Principal{
		ID:             claims.Subject,
		Role:           role,
		CredentialKind: CredentialJWT,
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		p.ExpiresAt = &t
	}

	// Static user entries may further restrict a JWT principal's sources.
	for i := range a.users {
		if a.users[i].id == p.ID && len(a.users[i].allowedIPs) > 0 {
			if sourceIP != "" && !matchesIPList(sourceIP, a.users[i].allowedIPs) {
				return nil, false, fault.Newf(fault.KindForbidden, "principal %s not allowed from this address", p.ID)
			}
			p.AllowedIPs = a.users[i].allowedIPs
		}
	}
	return p, false, nil
}

// Authorize checks a principal against the minimum role a tool requires.
func (a *Authenticator) Authorize(ctx context.Context, p *Principal, min Role) error {
	if p == nil {
		return fault.New(fault.KindUnauthorized, "no authenticated principal")
	}
	if !p.Role.AtLeast(min) {
		a.emitSecurity(ctx, audit.EventAuthzDenied, audit.SeverityMedium, p.ID, "",
			fmt.Sprintf("role %s below required %s", p.Role, min))
		return fault.Newf(fault.KindForbidden, "requires role %s or above", min)
	}
	return nil
}

// finish records the outcome of an authentication attempt. Expired tokens do
// not feed the lockout tracker.
func (a *Authenticator) finish(ctx context.Context, p *Principal, err error, credentialID, sourceIP string, expired bool) {
	if err == nil {
		a.lockout.RecordSuccess(credentialID, sourceIP)
		a.auditor.Log(ctx, audit.NewEvent(audit.EventAuthSucceeded).
			WithPrincipal(p.ID).
			WithSourceIP(sourceIP).
			WithResult(audit.ResultSuccess).
			WithDescription(fmt.Sprintf("authenticated via %s as %s", p.CredentialKind, p.Role)))
		if a.metrics != nil {
			a.metrics.SecurityEventsTotal.WithLabelValues("auth_succeeded", "low").Inc()
		}
		return
	}

	severity := audit.SeverityMedium
	if !expired {
		if a.lockout.RecordFailure(credentialID, sourceIP) {
			severity = audit.SeverityHigh
			a.emitSecurity(ctx, audit.EventLockout, severity, credentialID, sourceIP, "lockout triggered")
		}
	}
	a.emitSecurity(ctx, audit.EventAuthFailed, severity, credentialID, sourceIP, err.Error())
}

func (a *Authenticator) recordDenied(ctx context.Context, credentialID, sourceIP, reason string) {
	a.emitSecurity(ctx, audit.EventAuthFailed, audit.SeverityHigh, credentialID, sourceIP, reason)
}

func (a *Authenticator) emitSecurity(ctx context.Context, et audit.EventType, severity audit.Severity, principalID, sourceIP, desc string) {
	a.auditor.Log(ctx, audit.NewEvent(et).
		WithSeverity(severity).
		WithPrincipal(principalID).
		WithSourceIP(sourceIP).
		WithResult(audit.ResultDenied).
		WithDescription(desc))
	if a.metrics != nil {
		a.metrics.SecurityEventsTotal.WithLabelValues(string(et), string(severity)).Inc()
	}
}

// credentialHint derives the lockout key for not-yet-authenticated material.
// API keys are truncated so the audit trail never carries full secrets.
func credentialHint(creds Credentials) string {
	if creds.APIKey != "" {
		if len(creds.APIKey) > 8 {
			return "key-" + creds.APIKey[:8]
		}
		return "key-" + creds.APIKey
	}
	if creds.Token != "" {
		if len(creds.Token) > 12 {
			return "jwt-" + creds.Token[:12]
		}
		return "jwt-" + creds.Token
	}
	return ""
}

// matchesIPList reports whether ip matches any entry. Entries may be plain
// addresses or CIDR blocks.
func matchesIPList(ip string, list []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, entry := range list {
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if entryIP := net.ParseIP(entry); entryIP != nil && entryIP.Equal(parsed) {
			return true
		}
	}
	return false
}
