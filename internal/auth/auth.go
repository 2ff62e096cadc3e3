// Package auth carries the caller identity proven by the transport and
// answers whether a given identity has been proven for a request.
package auth

import (
	"context"

	"github.com/efreitasn/tradeescrow/internal/domain"
)

type ctxKey struct{}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(domain.Identity)
	return id, ok && id != ""
}

// Authorizer asserts that an identity has been proven for the current call.
type Authorizer interface {
	RequireAuth(ctx context.Context, id domain.Identity) error
}

// ContextAuthorizer accepts an identity when it equals the caller placed in
// the context by WithIdentity.
type ContextAuthorizer struct{}

// RequireAuth returns domain.ErrUnauthorized unless ctx carries id.
func (ContextAuthorizer) RequireAuth(ctx context.Context, id domain.Identity) error {
	caller, ok := IdentityFrom(ctx)
	if !ok || id == "" || caller != id {
		return domain.ErrUnauthorized
	}
	return nil
}
