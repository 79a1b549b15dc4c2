package rpcserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/subsquid/spray/pkg/ingest"
	"github.com/subsquid/spray/pkg/log"
	"github.com/subsquid/spray/pkg/metrics"
)

// DefaultPort is the listener's default port, used when a config file
// leaves it unset.
const DefaultPort = 3000

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP listener serving the JSON-RPC 2.0 websocket endpoint
// and the Prometheus metrics page.
type Server struct {
	pipeline *ingest.Pipeline
	mux      *http.ServeMux
}

// NewServer builds a Server backed by pipeline.
func NewServer(pipeline *ingest.Pipeline) *Server {
	s := &Server{pipeline: pipeline, mux: http.NewServeMux()}
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/health", metrics.HealthHandler())
	s.mux.HandleFunc("/ready", metrics.ReadyHandler())
	s.mux.HandleFunc("/live", metrics.LivenessHandler())
	s.mux.HandleFunc("/", s.handleWebsocket)
	return s
}

// Start blocks serving on addr until ctx is cancelled or the listener fails.
// Cancelling ctx triggers a graceful shutdown, draining in-flight requests
// before returning.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := log.WithComponent("rpcserver")
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	send := func(payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	handler := newConnHandler(s.pipeline, send)
	defer handler.close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := handler.handle(ctx, raw); err != nil {
			return
		}
	}
}
