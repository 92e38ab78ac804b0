package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
)

// Roles recognised in the Firebase custom claim.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the end-user principal extracted from a Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Roles []string
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

// ServiceIdentity is the service principal extracted from a Google-signed OIDC token.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type identityKey struct{}

type serviceIdentityKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}

// WithServiceIdentity attaches the verified service identity to the request context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	return context.WithValue(ctx, serviceIdentityKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// ActorFromContext maps the authenticated principal onto the engine's actor. Staff and admin
// users become admin actors; service principals become system actors.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	if identity, ok := IdentityFromContext(ctx); ok && strings.TrimSpace(identity.UID) != "" {
		role := domain.RoleUser
		if identity.HasRole(RoleAdmin) || identity.HasRole(RoleStaff) {
			role = domain.RoleAdmin
		}
		return domain.Actor{ID: identity.UID, Role: role}, true
	}
	if svc, ok := ServiceIdentityFromContext(ctx); ok {
		id := svc.Email
		if id == "" {
			id = svc.Subject
		}
		return domain.SystemActor(id), true
	}
	return domain.Actor{}, false
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
