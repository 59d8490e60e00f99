package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/counterdesk/internal/platform/errors"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

const (
	frameJoin  = "case.join"
	frameSync  = "case.sync"
	frameLeave = "case.leave"
	frameState = "case.state"
	frameEvent = "case.event"
	frameError = "case.error"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Kind   string `json:"kind"`
	CaseID string `json:"case_id"`
}

type statePayload struct {
	Snapshot domain.CaseView `json:"snapshot"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// session is the per-connection view: one peer and at most one room.
type session struct {
	peer   *peer
	kind   domain.Kind
	caseID string
}

func (s *session) room() string {
	if s.caseID == "" {
		return ""
	}
	return domain.RoomKey(s.kind, s.caseID)
}

func (h *Hub) serveConn(conn *websocket.Conn) {
	p := newPeer(conn)
	if !h.register(p) {
		_ = conn.Close()
		return
	}
	defer h.drop(p)
	go p.writeLoop()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}
	sess := &session{peer: p}
	decoder := json.NewDecoder(conn)

	windowStart := time.Now()
	framesInWindow := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || isClosed(p) {
				return
			}
			// The stream position is unknown after a syntax error, so the
			// connection ends here.
			p.writeFinal(errorFrame("", "INVALID_ARGUMENT", "invalid frame payload"))
			return
		}

		if len(frame.Payload) > maxFramePayloadBytes {
			sendError(p, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			sendError(p, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case frameJoin:
			h.handleJoin(ctx, sess, frame)
		case frameSync:
			h.handleSync(ctx, sess, frame)
		case frameLeave:
			h.handleLeave(sess)
		default:
			sendError(p, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func (h *Hub) handleJoin(ctx context.Context, sess *session, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		sendError(sess.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}
	kind, ok := domain.ParseKind(payload.Kind)
	if !ok {
		sendError(sess.peer, frame.RequestID, "INVALID_ARGUMENT", "kind must be exchange or return")
		return
	}
	caseID := strings.TrimSpace(payload.CaseID)
	if caseID == "" {
		sendError(sess.peer, frame.RequestID, "INVALID_ARGUMENT", "case_id is required")
		return
	}

	previous := sess.room()
	next := domain.RoomKey(kind, caseID)
	if previous != "" && previous != next {
		h.leave(previous, sess.peer)
	}
	// Join before loading so no event between load and join is lost.
	if !h.join(next, sess.peer) {
		sendError(sess.peer, frame.RequestID, "UNAVAILABLE", "realtime hub is closed")
		return
	}
	sess.kind, sess.caseID = kind, caseID
	if !h.pushSnapshot(ctx, sess, frame.RequestID) {
		h.leave(next, sess.peer)
		sess.kind, sess.caseID = "", ""
	}
}

func (h *Hub) handleSync(ctx context.Context, sess *session, frame wsFrame) {
	if sess.room() == "" {
		sendError(sess.peer, frame.RequestID, "FORBIDDEN", "must join a case before syncing")
		return
	}
	h.pushSnapshot(ctx, sess, frame.RequestID)
}

func (h *Hub) handleLeave(sess *session) {
	if room := sess.room(); room != "" {
		h.leave(room, sess.peer)
	}
	sess.kind, sess.caseID = "", ""
}

func (h *Hub) pushSnapshot(ctx context.Context, sess *session, requestID string) bool {
	if h.snapshots == nil {
		sendError(sess.peer, requestID, "UNAVAILABLE", "case snapshots are unavailable")
		return false
	}
	view, err := h.snapshots.Snapshot(ctx, sess.kind, sess.caseID)
	if err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.CodeCaseNotFound, apperrors.CodeInvalidArgument:
			sendError(sess.peer, requestID, "NOT_FOUND", "case not found")
		default:
			log.Printf("casework: realtime snapshot failed kind=%s case_id=%s err=%v", sess.kind, sess.caseID, err)
			sendError(sess.peer, requestID, "UNAVAILABLE", "case snapshot unavailable")
		}
		return false
	}
	sess.peer.send(wsFrame{
		Type:      frameState,
		RequestID: requestID,
		Payload:   mustJSON(statePayload{Snapshot: view}),
	})
	return true
}

func sendError(p *peer, requestID string, code string, message string) {
	p.send(errorFrame(requestID, code, message))
}

func errorFrame(requestID string, code string, message string) wsFrame {
	return wsFrame{
		Type:      frameError,
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{Code: code, Message: message, Retryable: code == "UNAVAILABLE"},
		}),
	}
}

func isClosed(p *peer) bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
