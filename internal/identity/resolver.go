package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"archmarket.io/internal/obs"
)

const bearerPrefix = "bearer "

// Headers is the read side of a header map. http.Header satisfies it.
type Headers interface {
	Get(key string) string
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" header.
func ExtractBearer(h Headers) (string, error) {
	if h == nil {
		return "", fmt.Errorf("%w: missing authorization header", ErrAuthenticationFailed)
	}
	header := strings.TrimSpace(h.Get("Authorization"))
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrAuthenticationFailed)
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", fmt.Errorf("%w: invalid authorization scheme", ErrAuthenticationFailed)
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", fmt.Errorf("%w: malformed bearer token", ErrAuthenticationFailed)
	}
	return token, nil
}

// Resolver authenticates requests with an explicitly supplied verifier.
type Resolver struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger for rejected identities.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

func NewResolver(verifier TokenVerifier, opts ...ResolverOption) *Resolver {
	r := &Resolver{verifier: verifier}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = obs.ResolveLogger(r.logger)
	return r
}

// ExtractIdentity reads the bearer token and verifies it.
func (r *Resolver) ExtractIdentity(ctx context.Context, h Headers) (Identity, error) {
	token, err := ExtractBearer(h)
	if err != nil {
		return Identity{}, err
	}
	if r.verifier == nil {
		return Identity{}, fmt.Errorf("%w: no verifier configured", ErrAuthenticationFailed)
	}
	id, err := r.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return id, nil
}

// Authenticate resolves the caller. Every failure is reported as exactly
// ErrAuthenticationFailed; the cause is only logged.
func (r *Resolver) Authenticate(ctx context.Context, h Headers) (Principal, error) {
	id, err := r.ExtractIdentity(ctx, h)
	if err != nil {
		r.logger.Info("authentication rejected", "event", "auth_rejected", "module", "identity", "reason", err.Error())
		return Principal{}, ErrAuthenticationFailed
	}
	p, err := Resolve(id)
	if err != nil {
		r.logger.Warn("identity rejected", "event", "identity_invalid", "module", "identity",
			"subject", id.Subject, "token_id", id.TokenID, "reason", err.Error())
		return Principal{}, ErrAuthenticationFailed
	}
	return p, nil
}

// AuthenticateService accepts only role-less service credentials and returns
// the service subject. User tokens are refused even when correctly signed.
// Every failure is exactly ErrAuthenticationFailed.
func (r *Resolver) AuthenticateService(ctx context.Context, h Headers) (string, error) {
	id, err := r.ExtractIdentity(ctx, h)
	if err != nil {
		r.logger.Info("service authentication rejected", "event", "auth_rejected", "module", "identity", "reason", err.Error())
		return "", ErrAuthenticationFailed
	}
	if id.RawRole != nil || id.ArchitectID != "" || id.BuyerID != "" {
		r.logger.Warn("user token presented as service credential", "event", "identity_invalid", "module", "identity",
			"subject", id.Subject, "token_id", id.TokenID)
		return "", ErrAuthenticationFailed
	}
	return id.Subject, nil
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the resolved principal to ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || p.IsZero() {
		return Principal{}, false
	}
	return p, true
}
