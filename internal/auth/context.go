package auth

import (
	"context"
	"errors"
)

var (
	ErrNoIdentity = errors.New("auth: no identity in context")
	ErrNoBusiness = errors.New("auth: identity is not scoped to a business")
	ErrNoRole     = errors.New("auth: identity has no role")
)

// Identity is the caller carried by a verified token. Call requests are
// partitioned by BusinessID, so an identity without one can read nothing.
type Identity struct {
	UserID     string
	BusinessID string
	Role       string
}

type identityKey struct{}

// WithIdentity stores the verified caller on ctx, replacing any earlier one.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

func UserID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	return id.UserID, err
}

// BusinessID is the business the caller belongs to.
func BusinessID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", err
	}
	if id.BusinessID == "" {
		return "", ErrNoBusiness
	}
	return id.BusinessID, nil
}

func Role(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", err
	}
	if id.Role == "" {
		return "", ErrNoRole
	}
	return id.Role, nil
}
