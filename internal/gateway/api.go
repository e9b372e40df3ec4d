package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/codeclaw/internal/approval"
	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/session"
	"github.com/flemzord/codeclaw/internal/tool"
)

const maxBodyBytes = 1 << 20

type sessionJSON struct {
	ID       string `json:"id"`
	Messages int    `json:"messages"`
	LastSeq  uint64 `json:"last_seq"`
	Pending  int    `json:"pending_approvals"`
	Busy     bool   `json:"busy"`
}

type approvalJSON struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	ToolName  tool.Name `json:"tool_name"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

type decisionRequest struct {
	Approved *bool `json:"approved"`
}

type decisionResponse struct {
	ID       string            `json:"id"`
	Decision approval.Decision `json:"decision"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := []sessionJSON{}
		for _, id := range g.sessions.IDs() {
			s, ok := g.sessions.Lookup(id)
			if !ok {
				continue
			}
			tr := s.Transcript()
			out = append(out, sessionJSON{
				ID:       id,
				Messages: len(tr.Messages),
				LastSeq:  tr.LastSeq,
				Pending:  len(s.Gate().Pending()),
				Busy:     g.sessions.Busy(id),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.sessions.Remove(chi.URLParam(r, "id")) {
			writeError(w, http.StatusNotFound, ErrSessionNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleTranscript() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.session(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.Transcript())
	}
}

func (g *Gateway) handleListApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.session(w, r)
		if !ok {
			return
		}
		out := []approvalJSON{}
		for _, req := range s.Gate().Pending() {
			out = append(out, approvalJSON{
				ID:        req.ID,
				CallID:    req.CallID,
				ToolName:  req.ToolName,
				Summary:   req.Summary,
				CreatedAt: req.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) handleDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.session(w, r)
		if !ok {
			return
		}

		var body decisionRequest
		if !decodeBody(w, r, &body) {
			return
		}
		if body.Approved == nil {
			writeError(w, http.StatusBadRequest, errors.New(`"approved" is required`))
			return
		}

		id := chi.URLParam(r, "approvalID")
		if !s.Gate().Submit(id, *body.Approved) {
			writeError(w, http.StatusNotFound, errors.New("approval not found or already decided"))
			return
		}

		d := approval.Rejected
		if *body.Approved {
			d = approval.Approved
		}
		g.logger.Info("approval decided over HTTP", "session", s.ID(), "approval", id, "decision", d)
		writeJSON(w, http.StatusOK, decisionResponse{ID: id, Decision: d})
	}
}

func (g *Gateway) handleMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body messageRequest
		if !decodeBody(w, r, &body) {
			return
		}

		if g.limiter != nil {
			if err := g.limiter.Allow(security.LimitMessage); err != nil {
				writeError(w, http.StatusTooManyRequests, err)
				return
			}
		}

		id := chi.URLParam(r, "id")
		err := g.sessions.Send(r.Context(), id, body.Text)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"session": id})
	}
}

// session opens the session named in the URL, writing the error response
// itself when that fails.
func (g *Gateway) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := g.sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return s, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSessionID), errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrTooManySessions), errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
