// Package statusserver is a read-only gorilla/mux HTTP introspection
// endpoint for an operator running one or more Signaling connections in
// a single process, following the teacher's router/http_server.go shape
// (mux.Router, HandleFunc per path, context.WithTimeout Shutdown).
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/saltyrtc/saltyrtc-go/signaling"
)

// Registry is the thread-safe set of live connections the status server
// reports on. A process wires a connection in when it Attaches a
// transport, and removes it once the connection reaches CLOSED.
type Registry struct {
	mtx   sync.Mutex
	conns map[string]*signaling.Signaling
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*signaling.Signaling)}
}

// Register adds a connection under id, overwriting any previous entry.
func (r *Registry) Register(id string, s *signaling.Signaling) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.conns[id] = s
}

// Unregister removes a connection.
func (r *Registry) Unregister(id string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.conns, id)
}

func (r *Registry) snapshot() map[string]*signaling.Signaling {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make(map[string]*signaling.Signaling, len(r.conns))
	for id, s := range r.conns {
		out[id] = s
	}
	return out
}

// PeerStatus is the JSON shape served by /peers for a single connection.
type PeerStatus struct {
	ID             string `json:"id"`
	Role           string `json:"role"`
	State          string `json:"state"`
	OurAddress     int    `json:"our_address"`
	ResponderCount int    `json:"responder_count,omitempty"`
	Task           string `json:"task,omitempty"`
}

// Status is the JSON shape served by /status.
type Status struct {
	ConnectionCount int `json:"connection_count"`
}

// Server wraps an http.Server behind a mux.Router, serving /status and
// /peers from a Registry.
type Server struct {
	registry *Registry
	srv      *http.Server
	r        *mux.Router
}

// NewServer builds a status server bound to registry. Start must be
// called to begin listening.
func NewServer(registry *Registry) *Server {
	return &Server{registry: registry}
}

func newRouter(c *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", c.processStatus)
	r.HandleFunc("/peers", c.processPeers)
	return r
}

// Start begins listening on port, following the teacher's
// fire-and-forget ListenAndServe-in-a-goroutine idiom.
func (c *Server) Start(port int) {
	c.r = newRouter(c)
	c.srv = &http.Server{
		Addr:    ":" + fmt.Sprint(port),
		Handler: c.r,
	}
	go func() {
		_ = c.srv.ListenAndServe()
	}()
}

// Stop shuts the server down within a short grace period.
func (c *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.srv.Shutdown(ctx)
}

func (c *Server) processStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	snap := c.registry.snapshot()
	_ = json.NewEncoder(w).Encode(Status{ConnectionCount: len(snap)})
}

func (c *Server) processPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	snap := c.registry.snapshot()
	out := make([]PeerStatus, 0, len(snap))
	for id, s := range snap {
		out = append(out, PeerStatus{
			ID:             id,
			Role:           s.Role().String(),
			State:          s.State().String(),
			OurAddress:     int(s.OurAddress()),
			ResponderCount: s.ResponderCount(),
			Task:           s.TaskName(),
		})
	}
	_ = json.NewEncoder(w).Encode(out)
}
