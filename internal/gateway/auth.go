package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/codeclaw/internal/security"
)

// authMiddleware admits requests carrying the configured bearer token or
// basic credentials. Every decision is written to audit when it is set.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method, reason := authenticate(cfg, r)
			if method == "" {
				auditAuth(audit, security.EventAuthFailure, r, reason)
				w.Header().Set("WWW-Authenticate", `Bearer realm="codeclaw"`)
				writeError(w, http.StatusUnauthorized, errUnauthorized)
				return
			}
			auditAuth(audit, security.EventAuthSuccess, r, method)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate returns the method that admitted r, or "" and the reason it
// was refused.
func authenticate(cfg AuthConfig, r *http.Request) (method, reason string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && cfg.BearerToken != "" {
		if equal(token, cfg.BearerToken) {
			return "bearer", ""
		}
		return "", "invalid bearer token"
	}
	if user, pass, ok := r.BasicAuth(); ok && cfg.BasicUser != "" && cfg.BasicPass != "" {
		// Both comparisons always run.
		userOK, passOK := equal(user, cfg.BasicUser), equal(pass, cfg.BasicPass)
		if userOK && passOK {
			return "basic", ""
		}
		return "", "invalid basic credentials"
	}
	return "", "unsupported authorization scheme"
}

func auditAuth(audit *security.AuditLogger, typ security.EventType, r *http.Request, detail string) {
	if audit == nil {
		return
	}
	audit.Log(security.AuditEvent{
		Type:   typ,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
