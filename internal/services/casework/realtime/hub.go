// Package realtime pushes case state changes to websocket subscribers
// grouped in per-case rooms.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

const (
	maxFramePayloadBytes = 16 * 1024
	maxFramesPerSecond   = 40
	peerQueueSize        = 32
)

// SnapshotLoader returns the current view of a case for join and sync.
type SnapshotLoader interface {
	Snapshot(ctx context.Context, kind domain.Kind, caseID string) (domain.CaseView, error)
}

// SnapshotFunc adapts a function to SnapshotLoader.
type SnapshotFunc func(ctx context.Context, kind domain.Kind, caseID string) (domain.CaseView, error)

// Snapshot calls f.
func (f SnapshotFunc) Snapshot(ctx context.Context, kind domain.Kind, caseID string) (domain.CaseView, error) {
	return f(ctx, kind, caseID)
}

// Recorder counts deliveries.
type Recorder interface {
	EventPublished(event string, subscribers int)
	PeerDropped()
}

type noopRecorder struct{}

func (noopRecorder) EventPublished(string, int) {}
func (noopRecorder) PeerDropped()               {}

// Hub owns the rooms and connected peers. Create it at process start with
// NewHub and release it with Close.
type Hub struct {
	snapshots SnapshotLoader
	recorder  Recorder

	mu     sync.Mutex
	rooms  map[string]map[*peer]struct{}
	peers  map[*peer]struct{}
	closed bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithRecorder sets the delivery recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

// NewHub builds a hub that loads snapshots from loader.
func NewHub(loader SnapshotLoader, opts ...Option) *Hub {
	h := &Hub{
		snapshots: loader,
		recorder:  noopRecorder{},
		rooms:     make(map[string]map[*peer]struct{}),
		peers:     make(map[*peer]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ domain.Broadcaster = (*Hub)(nil)

// Publish queues event for every peer in its room and returns immediately.
// A peer whose queue is full is disconnected.
func (h *Hub) Publish(_ context.Context, event domain.Event) {
	if h == nil || event.Room == "" {
		return
	}
	frame := wsFrame{Type: frameEvent, Payload: mustJSON(event)}
	subscribers := h.roomPeers(event.Room)
	for _, p := range subscribers {
		if !p.send(frame) {
			h.drop(p)
		}
	}
	h.recorder.EventPublished(event.Name, len(subscribers))
}

// Handler serves the websocket endpoint.
func (h *Hub) Handler() http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		h.serveConn(conn)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.isClosed() {
			http.Error(w, "realtime hub is closed", http.StatusServiceUnavailable)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

// Close disconnects every peer and clears all rooms.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[*peer]struct{})
	h.rooms = make(map[string]map[*peer]struct{})
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	return nil
}

// Subscribers returns how many peers are in a room.
func (h *Hub) Subscribers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) register(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	return true
}

func (h *Hub) join(room string, p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*peer]struct{})
		h.rooms[room] = members
	}
	members[p] = struct{}{}
	return true
}

func (h *Hub) leave(room string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, p)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) roomPeers(room string) []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	out := make([]*peer, 0, len(members))
	for p := range members {
		out = append(out, p)
	}
	return out
}

// drop removes a peer from the hub and closes its connection.
func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	_, known := h.peers[p]
	delete(h.peers, p)
	for room, members := range h.rooms {
		delete(members, p)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	if known {
		h.recorder.PeerDropped()
		log.Printf("casework: realtime peer dropped remote=%s", p.remote)
	}
	p.close()
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("casework: marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
