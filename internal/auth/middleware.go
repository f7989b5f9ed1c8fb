package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Middleware rejects requests without a valid bearer credential and stores
// the caller's user id in the request context. Every rejection other than a
// missing header gets the same body so callers cannot tell an expired token
// from a forged one.
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.Verify(r.Header.Get("Authorization"))
			if err != nil {
				reason := Malformed
				var aerr *AuthenticationError
				if errors.As(err, &aerr) {
					reason = aerr.Reason
				}
				logger.Debug("request rejected",
					"component", "auth",
					"reason", reason.String(),
					"path", r.URL.Path,
				)
				msg := "invalid token"
				if reason == Missing {
					msg = "missing token"
				}
				unauthorized(w, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="orders"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
