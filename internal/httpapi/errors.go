package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
	"github.com/xhifi/brainloggers-backend-sub001/internal/obs"
)

// Client-facing messages for the auth error taxonomy. Invalid credentials
// and unknown email share one message so accounts cannot be enumerated, and
// nothing below ever exposes internals.
const (
	msgInvalidCredentials = "Invalid email or password."
	msgNotVerified        = "Account is not verified."
	msgSessionInvalid     = "Invalid or expired refresh session."
	msgDeverified         = "Account is no longer verified."
	msgResetTokenInvalid  = "Password reset token is invalid or has expired."
	msgVerifyTokenInvalid = "Verification token is invalid."
	msgEmailTaken         = "Email is already in use."
	msgForbidden          = "forbidden"
	msgInternal           = "internal error"
)

// handleAuthError is the single place the error taxonomy maps to HTTP
// statuses. Handlers pass every controller error through here.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, auth.ErrNotVerified):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":             msgNotVerified,
			"needsVerification": true,
		})
	case errors.Is(err, auth.ErrMissingRefreshToken),
		errors.Is(err, auth.ErrUnidentifiableRefresh),
		errors.Is(err, auth.ErrRefreshReused),
		errors.Is(err, auth.ErrUserVanished):
		writeError(w, r, http.StatusUnauthorized, msgSessionInvalid)
	case errors.Is(err, auth.ErrDeverified):
		writeError(w, r, http.StatusForbidden, msgDeverified)
	case errors.Is(err, auth.ErrResetTokenInvalid):
		writeError(w, r, http.StatusBadRequest, msgResetTokenInvalid)
	case errors.Is(err, auth.ErrVerifyTokenInvalid):
		writeError(w, r, http.StatusBadRequest, msgVerifyTokenInvalid)
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, msgEmailTaken)
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, msgForbidden)
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		logUnexpected(r, err)
		writeError(w, r, http.StatusInternalServerError, msgInternal)
	}
}

// isAuthFailure reports whether a refresh error is a confirmed
// authentication failure. Only these clear the refresh cookie; transient
// server errors must not log users out.
func isAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrMissingRefreshToken) ||
		errors.Is(err, auth.ErrUnidentifiableRefresh) ||
		errors.Is(err, auth.ErrRefreshReused) ||
		errors.Is(err, auth.ErrUserVanished) ||
		errors.Is(err, auth.ErrDeverified)
}

func logUnexpected(r *http.Request, err error) {
	entry := map[string]any{
		"level": "error",
		"msg":   "unexpected error",
		"path":  r.URL.Path,
		"error": err.Error(),
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		entry["user_id"] = userID
	}
	obs.LogRequest(entry)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
