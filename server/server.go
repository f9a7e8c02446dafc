package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	shutdownWait = 5 * time.Second
)

type client struct {
	session *pipeline.Session
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Server accepts WebSocket connections and runs one detection session per
// connection. Sessions share nothing but the read-only services.
type Server struct {
	upgrader    websocket.Upgrader
	svcs        pipeline.ServicesFactory
	statsStream chan<- model.SessionStats

	mu      sync.Mutex
	clients map[string]*client
}

// New builds a server. Final session stats are offered to statsStream when
// it is non-nil; a full stream drops them.
func New(svcs pipeline.ServicesFactory, statsStream chan<- model.SessionStats) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		svcs:        svcs,
		statsStream: statsStream,
		clients:     make(map[string]*client),
	}
}

// Handler routes "/" to the WebSocket endpoint and "/healthz" to the health
// report, with permissive CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleWS)
	return cors.AllowAll().Handler(mux)
}

// Run listens on the configured port until ctx is done.
func Run(ctx context.Context, svcs pipeline.ServicesFactory, statsStream chan<- model.SessionStats) error {
	srv := New(svcs, statsStream)
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(svcs.CfgSvc.GetPort()),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		// Hijacked connections are not tracked by Shutdown.
		srv.closeAll()
	}()

	lgr.Logger.Info("server listening", slog.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return xerrors.Errorf("listen on %s: %w", httpServer.Addr, err)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		lgr.Logger.Debug("ws upgrade failed", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(s.svcs.CfgSvc.GetMaxMessageBytes())
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	id := uuid.NewString()
	c := &client{
		session: pipeline.NewSession(id, r.RemoteAddr, s.svcs),
		conn:    conn,
	}
	s.addClient(id, c)
	lgr.Logger.Info("session opened",
		slog.String("session", id),
		slog.String("remote", r.RemoteAddr),
	)

	done := make(chan struct{})
	go s.ping(c, done)
	defer func() {
		close(done)
		s.removeClient(id)
	}()

	send := func(payload []byte) error {
		return c.write(websocket.TextMessage, payload)
	}

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				lgr.Logger.Debug("session read ended", slog.String("session", id), slog.Any("error", err))
			}
			return
		}
		if err := c.session.Handle(r.Context(), messageKind(messageType), payload, send); err != nil {
			lgr.Logger.Debug("session write failed", slog.String("session", id), slog.Any("error", err))
			return
		}
	}
}

func (s *Server) ping(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"model_loaded": s.svcs.InferenceSvc != nil,
		"sessions":     s.sessionCount(),
	})
}

func (s *Server) addClient(id string, c *client) {
	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
}

func (s *Server) removeClient(id string) {
	s.mu.Lock()
	c, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	_ = c.conn.Close()
	stats := c.session.Close()
	lgr.Logger.Info("session closed",
		slog.String("session", id),
		slog.Int("messages", stats.Messages),
		slog.Int("responses", stats.Responses),
	)
	if s.statsStream == nil {
		return
	}
	select {
	case s.statsStream <- stats:
	default:
		lgr.Logger.Warn("stats stream full, dropping session stats", slog.String("session", id))
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		_ = c.conn.Close()
	}
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (c *client) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

func messageKind(messageType int) pipeline.MessageKind {
	if messageType == websocket.BinaryMessage {
		return pipeline.BinaryMessage
	}
	return pipeline.TextMessage
}
