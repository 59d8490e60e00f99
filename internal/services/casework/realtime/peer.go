package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/counterdesk/internal/platform/timeouts"
)

// peer is one websocket connection. All writes go through its queue so a
// slow client never blocks a publisher.
type peer struct {
	conn   *websocket.Conn
	remote string
	out    chan wsFrame
	done   chan struct{}
	once   sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	remote := ""
	if request := conn.Request(); request != nil {
		remote = request.RemoteAddr
	}
	return &peer{
		conn:   conn,
		remote: remote,
		out:    make(chan wsFrame, peerQueueSize),
		done:   make(chan struct{}),
	}
}

// send queues a frame. It reports false when the peer is closed or its
// queue is full.
func (p *peer) send(frame wsFrame) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

// writeLoop drains the queue until the peer closes or a write fails.
func (p *peer) writeLoop() {
	encoder := json.NewEncoder(p.conn)
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(timeouts.WebSocketWrite))
			if err := encoder.Encode(frame); err != nil {
				p.close()
				return
			}
		}
	}
}

// writeFinal writes one frame directly, bypassing the queue, for a peer
// that is about to be closed.
func (p *peer) writeFinal(frame wsFrame) {
	if isClosed(p) {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(timeouts.WebSocketWrite))
	_, _ = p.conn.Write(append(payload, '\n'))
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
