package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/rolodex/internal/config"
	"github.com/JonMunkholm/rolodex/internal/core"
	"github.com/JonMunkholm/rolodex/internal/logging"
)

// UserIDHeader names the header carrying the authenticated user id.
const UserIDHeader = "X-User-ID"

// APIKeyAuth checks X-API-Key against cfg.APIKeys when cfg.RequireAPIKey is
// set. With the check disabled the handler is returned unwrapped.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch key := r.Header.Get("X-API-Key"); {
			case key == "":
				reject(w, r, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
			case !keyAllowed(key, cfg.APIKeys):
				reject(w, r, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireUser scopes the request context to the X-User-ID caller and
// rejects requests without one. Authentication itself happens upstream.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			reject(w, r, http.StatusUnauthorized, "missing user id", "AUTH_MISSING_USER")
			return
		}
		next.ServeHTTP(w, r.WithContext(core.ContextWithUserID(r.Context(), userID)))
	})
}

// keyAllowed compares against every key so timing does not reveal which matched.
func keyAllowed(key string, allowed []string) bool {
	match := 0
	for _, k := range allowed {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return match == 1
}

func reject(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	logging.FromContext(r.Context()).Warn("auth rejected",
		"code", code,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
	writeJSONError(w, status, message, code)
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
