package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/codeclaw/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime    float64           `json:"uptime_seconds"`
	Sessions  int               `json:"sessions"`
	Pending   int               `json:"pending_approvals"`
	Providers []provider.Status `json:"providers,omitempty"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Sessions: g.sessions.Len(),
		}
		for _, id := range g.sessions.IDs() {
			if s, ok := g.sessions.Lookup(id); ok {
				resp.Pending += len(s.Gate().Pending())
			}
		}
		if g.health != nil {
			resp.Providers = g.health.Status()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
