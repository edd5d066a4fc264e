package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"archmarket.io/internal/contact"
	"archmarket.io/internal/identity"
	"archmarket.io/internal/obs"
	"archmarket.io/internal/workflow"
)

const serviceName = "archmarket-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database. A nil DB (in-memory mode) is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Resolver *identity.Resolver
	// Payments authenticates the payment collaborator with its own
	// credential. Payment confirmations are refused while it is nil.
	Payments *identity.Resolver
	Workflow *workflow.Service
	Contact  *contact.Service
	Ready    readinessChecker
	Version  string
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	resolver *identity.Resolver
	payments *identity.Resolver
	workflow *workflow.Service
	contact  *contact.Service
	ready    readinessChecker
	version  string
	logger   *slog.Logger

	maxBody  int64
	burst    int
	perSec   int
	limiting bool
	trusted  []netip.Prefix

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*API)

// WithLogger sets the logger used for request and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithMaxBodyBytes caps request bodies. Zero disables the cap.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) { a.maxBody = n }
}

// WithRateLimit enables a per client IP token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.burst, a.perSec = burst, perSecond
		a.limiting = burst > 0 && perSecond > 0
	}
}

// WithTrustedProxies lists the peers whose X-Forwarded-For header is
// honoured when identifying clients for rate limiting.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trusted = prefixes }
}

func New(deps Deps, opts ...Option) *API {
	a := &API{
		resolver: deps.Resolver,
		payments: deps.Payments,
		workflow: deps.Workflow,
		contact:  deps.Contact,
		ready:    deps.Ready,
		version:  deps.Version,
		maxBody:  1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = obs.ResolveLogger(a.logger)
	a.ctx, a.cancel = context.WithCancel(context.Background())
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recover(a.logger), RequestID, LoggingJSON, SecurityHeaders)
	if a.maxBody > 0 {
		r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBody) })
	}
	if a.limiting {
		r.Use(func(next http.Handler) http.Handler { return RateLimit(a.ctx, next, a.burst, a.perSec, a.trusted) })
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Group(func(api chi.Router) {
		api.Use(a.withAuth)

		api.Route("/v1/modification-requests", func(mr chi.Router) {
			mr.Post("/", a.createModificationRequest)
			mr.Get("/{id}", a.getModificationRequest)
			mr.Post("/{id}/transitions", a.transitionModificationRequest)
		})
		api.Get("/v1/designs/{id}/contact-access", a.contactAccess)

		api.Post("/v1/internal/exclusive-purchases", a.recordExclusivePurchase)
	})

	r.With(a.withServiceAuth).Post("/v1/internal/modification-requests/{id}/payment-confirmations", a.confirmPayment)
	return r
}

// Close stops background work started by New.
func (a *API) Close() {
	a.cancel()
}

// Handler returns the root handler wrapped in metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		a.logger.Warn("readiness probe failed", "event", "not_ready", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"error": msg}
	if id := RequestIDFromContext(r.Context()); id != "" {
		body["request_id"] = id
	}
	writeJSON(w, code, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
