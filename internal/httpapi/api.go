// Package httpapi exposes the session and RBAC core over HTTP. It is the
// single enforcement point for authentication and permission checks;
// downstream handlers never re-derive authorization on their own, with the
// one exception of the shared-role update veto, which depends on the target
// entity and is applied inside the user-update handler.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
	"github.com/xhifi/brainloggers-backend-sub001/internal/obs"
	"github.com/xhifi/brainloggers-backend-sub001/internal/stream"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// CookieConfig describes the refresh-token cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// Deps carries the constructed collaborators the API composes.
type Deps struct {
	Sessions   *auth.Sessions
	Resolver   *auth.Resolver
	Tokens     *auth.Tokens
	Denylist   *auth.Denylist
	Users      auth.UserStore
	Roles      auth.RoleStore
	Events     *stream.Hub
	ReadyProbe ReadyProbe
	Version    string
	Cookie     CookieConfig
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	sessions   *auth.Sessions
	resolver   *auth.Resolver
	tokens     *auth.Tokens
	denylist   *auth.Denylist
	users      auth.UserStore
	roles      auth.RoleStore
	events     *stream.Hub
	readyProbe ReadyProbe
	version    string
	cookie     CookieConfig
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		sessions:   deps.Sessions,
		resolver:   deps.Resolver,
		tokens:     deps.Tokens,
		denylist:   deps.Denylist,
		users:      deps.Users,
		roles:      deps.Roles,
		events:     deps.Events,
		readyProbe: deps.ReadyProbe,
		version:    deps.Version,
		cookie:     deps.Cookie,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/events", a.handleAuthEvents)

	// users
	a.mux.HandleFunc("/v1/users/me", a.handleMe)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// role administration
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "brainloggers-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
