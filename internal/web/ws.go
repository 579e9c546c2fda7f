package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/frontdesk/internal/conversation"
	"github.com/MrWong99/frontdesk/internal/dashboard"
	"github.com/MrWong99/frontdesk/internal/observe"
)

// inFrame is a client chat message.
type inFrame struct {
	Text string `json:"text"`
}

// outFrame is the server's answer to one [inFrame].
type outFrame struct {
	Reply        string             `json:"reply,omitempty"`
	Error        string             `json:"error,omitempty"`
	LeadCaptured bool               `json:"lead_captured"`
	Notified     bool               `json:"notified"`
	Dashboard    dashboard.Snapshot `json:"dashboard"`
}

// handleWS upgrades to a WebSocket and handles one turn per frame. Frames
// are processed sequentially, so a connection never has two turns in flight.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	// The server's read/write timeouts would otherwise cut long-lived chats.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("web: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxPromptBytes)

	ctx := r.Context()
	log := observe.SessionLogger(ctx, sess.ID())
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("web: websocket read ended", "err", err)
				}
			}
			return
		}

		var in inFrame
		if err := json.Unmarshal(data, &in); err != nil {
			if err := s.writeFrame(ctx, conn, outFrame{Error: "malformed frame", Dashboard: s.Snapshot()}); err != nil {
				return
			}
			continue
		}

		out := s.turn(ctx, sess, in.Text)
		if err := s.writeFrame(ctx, conn, out); err != nil {
			log.Debug("web: websocket write failed", "err", err)
			return
		}
	}
}

func (s *Server) turn(ctx context.Context, sess *conversation.Session, text string) outFrame {
	text = strings.TrimSpace(text)
	if text == "" {
		return outFrame{Error: "empty message", Dashboard: s.Snapshot()}
	}
	res, _ := s.rcpt.HandleTurn(ctx, sess, text)
	flash := sess.TakeFlash()
	return outFrame{
		Reply:        res.Reply,
		Error:        flash.Error,
		LeadCaptured: res.LeadCaptured,
		Notified:     res.Notified,
		Dashboard:    s.Snapshot(),
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, out outFrame) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
