package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/config"
	"sous-chef/internal/infra/middleware"
)

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server exposes the engine over HTTP (blocking JSON and SSE) and WebSocket.
type Server struct {
	engine    Converser
	history   HistoryWriter
	auth      Authenticator
	logger    *slog.Logger
	cfg       config.GatewayConfig
	httpSrv   *http.Server
	boundAddr string
	clients   sync.Map // connID (uint64) -> *clientConn
	nextID    atomic.Uint64
}

// NewServer creates a gateway server. When no auth tokens are configured
// every request is accepted, which is only meant for local development.
func NewServer(cfg config.GatewayConfig, engine Converser, history HistoryWriter, logger *slog.Logger) *Server {
	var auth Authenticator
	if len(cfg.AuthTokens) == 0 {
		logger.Warn("gateway running without authentication")
		auth = OpenAuth{}
	} else {
		auth = NewStaticTokenAuth(cfg.AuthTokens)
	}
	return &Server{
		engine:  engine,
		history: history,
		auth:    auth,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start begins serving. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/v1/chat", s.requireAuth(http.HandlerFunc(s.handleChat)))
	mux.Handle("/v1/chat/stream", s.requireAuth(http.HandlerFunc(s.handleChatStream)))
	mux.HandleFunc("/ws", s.handleUpgrade)

	handler := middleware.SecurityHeaders(
		middleware.RateLimit(ctx, s.cfg.RequestsPerMin, s.cfg.BurstSize)(mux),
	)

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: handler}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// requireAuth wraps an HTTP handler with bearer-token authentication.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.Authenticate(bearerToken(r)); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, err := s.auth.Authenticate(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)
	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return // connection closed or error
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		// One chat at a time per connection keeps event frames ordered.
		s.dispatch(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// dispatch runs one RPC frame. The only method is "chat": engine events are
// forwarded as event frames, then a response frame closes the exchange.
func (s *Server) dispatch(ctx context.Context, cc *clientConn, req Frame) {
	if req.Method != "chat" {
		s.sendResponse(cc, req.ID, nil, fmt.Errorf("unknown method %q", req.Method))
		return
	}

	var chatReq ChatRequest
	if err := json.Unmarshal(req.Payload, &chatReq); err != nil {
		s.sendResponse(cc, req.ID, nil, fmt.Errorf("invalid chat payload: %v", err))
		return
	}
	if chatReq.Message == "" {
		s.sendResponse(cc, req.ID, nil, fmt.Errorf("'message' is required"))
		return
	}
	if chatReq.UserID == "" {
		chatReq.UserID = cc.info.Name
	}
	if chatReq.ThreadID == "" {
		chatReq.ThreadID = newThreadID()
	}

	sink := domain.SinkFunc(func(_ context.Context, ev domain.StreamEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		select {
		case cc.sendCh <- Frame{Type: FrameTypeEvent, ID: req.ID, Payload: payload}:
			return nil
		case <-cc.done:
			return domain.ErrStreamClosed
		}
	})

	result, err := s.engine.ConverseStream(ctx, chatReq.UserID, chatReq.ThreadID, chatReq.Message, sink)
	if err != nil {
		s.sendResponse(cc, req.ID, nil, err)
		return
	}
	s.persistTurn(ctx, &chatReq, result)

	payload, err := json.Marshal(ChatResponse{ThreadID: chatReq.ThreadID, Result: result})
	s.sendResponse(cc, req.ID, payload, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	select {
	case cc.sendCh <- resp:
	default:
		s.logger.Warn("gateway: dropped RPC response for slow client", "frame_id", id)
	}
}
