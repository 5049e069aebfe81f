package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures a bridge Server.
type Config struct {
	// Prefix is the path prefix for bridge routes.
	// Default: "/_hashstate"
	Prefix string

	// OnConnect is called once per tab after its hello arrives. It runs
	// before any hashchange from that tab is read, so bindings created here
	// see every later change. ctx is cancelled when the tab disconnects.
	OnConnect func(ctx context.Context, c *Conn)

	// CheckOrigin validates the Origin header of websocket upgrades.
	// Default: same-origin check from gorilla/websocket.
	CheckOrigin func(r *http.Request) bool

	// HandshakeTimeout bounds the wait for the hello message.
	// Default: 10 seconds
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outgoing frame.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxMessageSize caps incoming frames.
	// Default: 64KB
	MaxMessageSize int64

	// Registerer receives the bridge metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	// Gatherer, when set, is served at "/metrics".
	Gatherer prometheus.Gatherer

	// Logger for connection events.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:           "/_hashstate",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxMessageSize:   64 * 1024,
	}
}

// Server accepts bridge connections from browser tabs.
type Server struct {
	config   Config
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *serverMetrics
}

// New creates a Server. Zero fields in cfg take their defaults.
func New(cfg Config) *Server {
	defaults := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = defaults.Prefix
	}
	cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger:  logger.With("component", "bridge"),
		metrics: newServerMetrics(cfg.Registerer),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(cfg.Prefix+"/client.js", s.handleClientJS)
	r.Get(cfg.Prefix+"/ws", s.HandleWebSocket)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r

	return s
}

// Router returns the server's router so callers can mount more routes.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleClientJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(ClientJS)
}

// HandleWebSocket upgrades the request, waits for the tab's hello, runs
// OnConnect and then reads hashchanges until the tab goes away.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ws.SetReadLimit(s.config.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))

	_, data, err := ws.ReadMessage()
	if err != nil {
		s.logger.Warn("hello read failed", "error", err)
		ws.Close()
		return
	}
	var hello Message
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != TypeHello {
		s.logger.Warn("invalid hello", "error", err, "type", hello.Type)
		s.metrics.rejected.Inc()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "expected hello"),
			time.Now().Add(s.config.WriteTimeout))
		ws.Close()
		return
	}
	_ = ws.SetReadDeadline(time.Time{})
	s.metrics.recordMessage("in", TypeHello)

	id := uuid.NewString()
	logger := s.logger.With("session", id)
	conn := newConn(id, ws, hello, s.config.WriteTimeout, logger, s.metrics)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.metrics.connections.Inc()
	defer s.metrics.connections.Dec()
	logger.Info("tab connected", "path", hello.Path)

	if s.config.OnConnect != nil {
		s.config.OnConnect(ctx, conn)
	}

	conn.readLoop()
	logger.Info("tab disconnected")
}

type serverMetrics struct {
	connections prometheus.Gauge
	rejected    prometheus.Counter
	messages    *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hashstate",
			Subsystem: "bridge",
			Name:      "connections",
			Help:      "Number of connected tabs",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hashstate",
			Subsystem: "bridge",
			Name:      "rejected_total",
			Help:      "Connections closed for a missing or invalid hello",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hashstate",
			Subsystem: "bridge",
			Name:      "messages_total",
			Help:      "Bridge messages by direction and type",
		}, []string{"direction", "type"}),
	}
}

func (m *serverMetrics) recordMessage(direction, typ string) {
	if m == nil {
		return
	}
	switch typ {
	case TypeHello, TypeHashChange, TypeSet, TypeClear, TypeNavigate:
	default:
		typ = "unknown"
	}
	m.messages.WithLabelValues(direction, typ).Inc()
}
