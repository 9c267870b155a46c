package http

import (
	"context"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/daniellavrushin/weaver/http/handler"
	"github.com/daniellavrushin/weaver/http/ws"
	"github.com/daniellavrushin/weaver/log"
	"github.com/daniellavrushin/weaver/metrics"
)

// Server is the observability listener: health, metrics and log streaming.
type Server struct {
	srv     *stdhttp.Server
	ln      net.Listener
	hub     *ws.LogHub
	metrics *metrics.Collector
}

// NewHandler builds the routing table without binding a socket.
func NewHandler(api *handler.API, hub *ws.LogHub) stdhttp.Handler {
	mux := stdhttp.NewServeMux()

	registerWebSocketEndpoints(mux, api, hub)
	api.RegisterEndpoints(mux)

	return cors(mux)
}

// StartServer binds addr and serves in the background. An empty addr
// disables the server and returns nil. A bind failure is returned so the
// caller can fail startup.
func StartServer(addr string, api *handler.API, hub *ws.LogHub, m *metrics.Collector) (*Server, error) {
	if addr == "" {
		log.Infof("Health server disabled (empty health_bind)")
		return nil, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		srv: &stdhttp.Server{
			Handler:           NewHandler(api, hub),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:      ln,
		hub:     hub,
		metrics: m,
	}
	log.Infof("Health server listening on %s", ln.Addr())
	if m != nil {
		m.RecordEvent("info", fmt.Sprintf("Health server started on %s", ln.Addr()))
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != stdhttp.ErrServerClosed {
			log.Errorf("Health server error: %v", err)
			if m != nil {
				m.RecordEvent("error", fmt.Sprintf("Health server error: %v", err))
			}
		}
	}()

	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown stops the log hub and gracefully closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Stop()
	}
	return s.srv.Shutdown(ctx)
}

func registerWebSocketEndpoints(mux *stdhttp.ServeMux, api *handler.API, hub *ws.LogHub) {
	if hub != nil {
		mux.HandleFunc("/api/ws/logs", hub.HandleLogs)
	}
	mux.HandleFunc("/api/ws/metrics", ws.HandleMetrics(func() any { return api.MetricsSnapshot() }, time.Second))

	log.Tracef("WebSocket endpoints registered: /api/ws/logs, /api/ws/metrics")
}

func cors(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == stdhttp.MethodOptions {
			w.WriteHeader(stdhttp.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
