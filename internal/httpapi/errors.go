package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"archmarket.io/internal/authz"
	"archmarket.io/internal/contact"
	"archmarket.io/internal/identity"
	"archmarket.io/internal/workflow"
)

const (
	msgAuthRequired = "Authentication required"
	msgAccessDenied = "Access denied"
)

// respondDomainError maps service errors to status codes. Authentication and
// authorization failures always carry the same body so callers learn nothing
// about why they were rejected.
func (a *API) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var policy *contact.PolicyError
	switch {
	case errors.Is(err, identity.ErrAuthenticationFailed), errors.Is(err, identity.ErrInvalidIdentity):
		w.Header().Set("WWW-Authenticate", `Bearer realm="archmarket"`)
		writeError(w, r, http.StatusUnauthorized, msgAuthRequired)
	case errors.Is(err, authz.ErrPermissionDenied), errors.Is(err, workflow.ErrNotFound):
		// A missing request answers like a foreign one so ids cannot be enumerated.
		writeError(w, r, http.StatusForbidden, msgAccessDenied)
	case errors.As(err, &policy):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      policy.Explanation(),
			"rule":       policy.Rule,
			"field":      policy.Field,
			"request_id": RequestIDFromContext(r.Context()),
		})
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrInvalidInput),
		errors.Is(err, workflow.ErrLicenseRequired),
		errors.Is(err, contact.ErrInvalidUnlock):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, contact.ErrNotEntitled), errors.Is(err, contact.ErrAlreadyUnlocked):
		writeError(w, r, http.StatusConflict, publicMessage(err))
	case errors.Is(err, workflow.ErrDesignNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		a.logger.Error("request failed", "event", "internal_error", "module", "httpapi",
			"method", r.Method, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// publicMessage drops the package prefix from a sentinel-wrapped message.
func publicMessage(err error) string {
	msg := err.Error()
	for _, prefix := range []string{"workflow: ", "contact: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}
