package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/codeclaw/internal/session"
	"github.com/flemzord/codeclaw/internal/transcript"
)

// Client message types accepted on the event stream.
const (
	MsgDecision = "decision"
	MsgError    = "error"
)

// ClientMessage is sent by a WebSocket client to decide an approval.
type ClientMessage struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

type streamError struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// handleFollow replays the events after ?after=<seq> and then streams live
// events. Every event is written once, in sequence order.
func (g *Gateway) handleFollow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var after uint64
		if v := r.URL.Query().Get("after"); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				http.Error(w, "invalid after parameter", http.StatusBadRequest)
				return
			}
			after = n
		}

		s, ok := g.session(w, r)
		if !ok {
			return
		}

		// The stream outlives the server's per-request deadlines.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.CloseNow()
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		past, live, unsubscribe, err := s.Follow(ctx, after, g.config.FollowBuffer)
		if err != nil {
			g.logger.Error("follow failed", "session", s.ID(), "error", err)
			_ = conn.Close(websocket.StatusInternalError, "event log unavailable")
			return
		}
		defer unsubscribe()

		go g.readLoop(ctx, cancel, conn, s)

		last := after
		send := func(ev transcript.Event) error {
			if ev.Seq <= last {
				return nil
			}
			if err := g.writeMessage(ctx, conn, ev); err != nil {
				return err
			}
			last = ev.Seq
			return nil
		}

		for _, ev := range past {
			if err := send(ev); err != nil {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			case ev, ok := <-live:
				if !ok {
					_ = conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
					return
				}
				if err := send(ev); err != nil {
					return
				}
			}
		}
	}
}

// readLoop applies decisions sent by the client until the connection
// closes, then cancels the stream.
func (g *Gateway) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, s *session.Session) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = g.writeMessage(ctx, conn, streamError{Type: MsgError, Error: "invalid message"})
			continue
		}
		if msg.Type != MsgDecision {
			_ = g.writeMessage(ctx, conn, streamError{Type: MsgError, ID: msg.ID, Error: "unknown message type " + strconv.Quote(msg.Type)})
			continue
		}
		if !s.Gate().Submit(msg.ID, msg.Approved) {
			_ = g.writeMessage(ctx, conn, streamError{Type: MsgError, ID: msg.ID, Error: "approval not found or already decided"})
			continue
		}
		g.logger.Info("approval decided over websocket", "session", s.ID(), "approval", msg.ID, "approved", msg.Approved)
	}
}

func (g *Gateway) writeMessage(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
