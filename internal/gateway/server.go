package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// Server is the WebSocket RPC gateway in front of the session manager and
// the verification engine.
type Server struct {
	sessions     *session.Manager
	engine       *verify.Engine
	router       *MethodRouter
	checkLimiter *RateLimiter
	upgrader     websocket.Upgrader
	startedAt    time.Time

	cfgMu sync.RWMutex
	cfg   config.GatewayConfig
	// runCtx outlives individual connections so a check keeps running (and
	// lands in the run history) when its requester disconnects.
	runCtx context.Context

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewServer creates a gateway. Register method groups on Router() before Start.
func NewServer(cfg config.GatewayConfig, sessions *session.Manager, engine *verify.Engine) *Server {
	s := &Server{
		sessions:     sessions,
		engine:       engine,
		checkLimiter: NewRateLimiter(cfg.CheckRPM, cfg.CheckBurst),
		cfg:          cfg,
		clients:      make(map[string]*Client),
		startedAt:    time.Now(),
		runCtx:       context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Access is guarded by the connect token, not by origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = NewMethodRouter(s)
	return s
}

func (s *Server) Router() *MethodRouter { return s.router }

func (s *Server) Sessions() *session.Manager { return s.sessions }

func (s *Server) Engine() *verify.Engine { return s.engine }

func (s *Server) CheckLimiter() *RateLimiter { return s.checkLimiter }

// RunContext is the context background checks run under.
func (s *Server) RunContext() context.Context {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.runCtx
}

// SinkFor returns the sink that forwards userID's session events to its connections.
func (s *Server) SinkFor(userID string) session.Sink { return userSink{server: s, userID: userID} }

// ApplyConfig picks up hot-reloaded gateway settings. The listen address is
// only read at Start.
func (s *Server) ApplyConfig(cfg config.GatewayConfig) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.checkLimiter.SetLimits(cfg.CheckRPM, cfg.CheckBurst)
}

func (s *Server) token() string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Token
}

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start listens until ctx is cancelled, then closes every connection.
func (s *Server) Start(ctx context.Context) error {
	s.cfgMu.Lock()
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.runCtx = ctx
	s.cfgMu.Unlock()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Broadcast(*protocol.NewEvent(protocol.EventShutdown, nil))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("gateway shutdown", "error", err)
	}

	s.mu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.mu.Unlock()
	s.checkLimiter.Stop()

	slog.Info("gateway stopped")
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := NewClient(conn, s)
	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()
	slog.Debug("client connected", "client", client.id, "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.clients, client.id)
		s.mu.Unlock()
		client.Close()
		slog.Debug("client disconnected", "client", client.id, "user", client.UserID())
	}()

	client.Run(r.Context())
}

// HealthReport is served by /health and the health method.
type HealthReport struct {
	Status   string `json:"status"`
	Protocol int    `json:"protocol"`
	Uptime   string `json:"uptime"`
	Clients  int    `json:"clients"`
	Sessions int    `json:"sessions"`
	Ready    int    `json:"ready"`
	Cache    any    `json:"cache"`
}

func (s *Server) Health() HealthReport {
	statuses := s.sessions.List()
	ready := 0
	for _, st := range statuses {
		if st.IsReady {
			ready++
		}
	}
	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	return HealthReport{
		Status:   "ok",
		Protocol: protocol.ProtocolVersion,
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
		Clients:  clients,
		Sessions: len(statuses),
		Ready:    ready,
		Cache:    s.engine.CacheStats(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Health())
}

// BroadcastToUser sends an event to every connection bound to userID.
func (s *Server) BroadcastToUser(userID string, event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.UserID() == userID {
			c.SendEvent(event)
		}
	}
}

// Broadcast sends an event to every authenticated connection.
func (s *Server) Broadcast(event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.UserID() != "" {
			c.SendEvent(event)
		}
	}
}
