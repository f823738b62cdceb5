package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers liveness probes while a session is running.
type HealthzServer struct {
	log    log.Logger
	server *http.Server
	done   atomic.Bool
}

// NewHealthzServer creates a healthz server
func NewHealthzServer(lgr log.Logger) *HealthzServer {
	h := &HealthzServer{log: lgr}
	h.server = &http.Server{Handler: h.Handler()}
	return h
}

// Handler returns the CORS-wrapped probe handler.
func (h *HealthzServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

// Serve blocks serving probes on l until Shutdown.
func (h *HealthzServer) Serve(l net.Listener) error {
	return h.server.Serve(l)
}

// Shutdown stops the server
func (h *HealthzServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// MarkDone records that the session has finished.
func (h *HealthzServer) MarkDone() {
	h.done.Store(true)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	state := "running"
	if h.done.Load() {
		state = "done"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "session": state})
}
