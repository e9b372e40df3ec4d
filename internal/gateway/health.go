package gateway

import (
	"net/http"

	"github.com/flemzord/codeclaw/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string            `json:"status"` // "ok" or "degraded"
	Sessions  int               `json:"sessions"`
	Providers []provider.Status `json:"providers,omitempty"`
}

// handleHealth returns 200 while at least one provider is available and
// 503 when all of them are cooling down.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Sessions: g.sessions.Len()}

		if g.health != nil {
			resp.Providers = g.health.Status()
			available := false
			for _, p := range resp.Providers {
				available = available || p.Available
			}
			if !available && len(resp.Providers) > 0 {
				resp.Status = "degraded"
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
