package httpapi

import (
	"net/http"
	"strings"

	"github.com/xhifi/brainloggers-backend-sub001/internal/audit"
	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.sessions.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"user_id": u.ID})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": map[string]any{
			"id":         u.ID,
			"email":      u.Email,
			"isVerified": u.IsVerified,
		},
	})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.VerifyEmail(r.Context(), req.Token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.setRefreshCookie(w, res.RefreshToken)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": res.User.ID})
	writeJSON(w, http.StatusOK, sessionResponse(res))
}

// handleRefresh rotates the refresh session. The expired access token in the
// Authorization header identifies the user; the cookie carries the opaque
// refresh token. The cookie is cleared only on a confirmed auth failure so a
// transient store error cannot log everyone out.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rawRefresh := ""
	if c, err := r.Cookie(a.cookie.Name); err == nil {
		rawRefresh = c.Value
	}
	bearer, _ := auth.TokenFromContext(r.Context())
	res, err := a.sessions.Refresh(r.Context(), rawRefresh, bearer)
	if err != nil {
		if isAuthFailure(err) {
			a.clearRefreshCookie(w)
		}
		handleAuthError(w, r, err)
		return
	}
	a.setRefreshCookie(w, res.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse(res))
}

// handleLogout clears the refresh cookie on every outcome, including the
// unauthenticated ones; revocation itself still needs a verifiable token.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.clearRefreshCookie(w)

	raw, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	claims, err := a.tokens.ParseAccessToken(raw)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	if err := a.sessions.Logout(r.Context(), claims.Subject, raw); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"user_id": claims.Subject})
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword answers 200 regardless of whether the email exists.
func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	if err := a.sessions.ForgotPassword(r.Context(), req.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "If that email is registered, a reset link has been sent.",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// sessionResponse shapes the login/refresh payload. Both expiry fields are
// absolute epoch milliseconds.
func sessionResponse(res *auth.LoginResult) map[string]any {
	return map[string]any{
		"accessToken":           res.AccessToken,
		"accessTokenExpiresIn":  res.AccessExpiresAt.UnixMilli(),
		"refreshTokenExpiresIn": res.RefreshExpiresAt.UnixMilli(),
		"user":                  res.User,
	}
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.cookie.TTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
