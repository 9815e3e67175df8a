// Package auth handles session login and resolves the acting principal.
// Lifecycle operations never reach into ambient state: handlers build a
// Principal here and pass it down explicitly.
package auth

import (
	"context"
	"time"
)

// User is an application account.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// Principal identifies the acting user and the firms they may operate on.
type Principal struct {
	UserID  int64
	FirmIDs []int64
}

// IsZero reports whether no authenticated user backs the principal.
func (p Principal) IsZero() bool {
	return p.UserID == 0
}

// CanAccessFirm reports whether the principal holds non-revoked access to the firm.
func (p Principal) CanAccessFirm(firmID int64) bool {
	for _, id := range p.FirmIDs {
		if id == firmID {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. A zero Principal
// means the request carries no authenticated session.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalContextKey{}).(Principal)
	return p
}
