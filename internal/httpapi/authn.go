package httpapi

import (
	"context"
	"net/http"

	"archmarket.io/internal/identity"
)

// withAuth resolves the bearer token into a principal. Routes mounted behind
// it never run without one.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.resolver == nil {
			a.respondDomainError(w, r, identity.ErrAuthenticationFailed)
			return
		}
		p, err := a.resolver.Authenticate(r.Context(), r.Header)
		if err != nil {
			a.respondDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.ContextWithPrincipal(r.Context(), p)))
	})
}

type serviceContextKey struct{}

// withServiceAuth admits only the payment collaborator's own credential.
// User tokens of any role are refused.
func (a *API) withServiceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.payments == nil {
			a.respondDomainError(w, r, identity.ErrAuthenticationFailed)
			return
		}
		subject, err := a.payments.AuthenticateService(r.Context(), r.Header)
		if err != nil {
			a.respondDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), serviceContextKey{}, subject)))
	})
}

func serviceSubject(r *http.Request) string {
	s, _ := r.Context().Value(serviceContextKey{}).(string)
	return s
}

func principal(r *http.Request) identity.Principal {
	p, _ := identity.PrincipalFromContext(r.Context())
	return p
}
