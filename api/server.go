package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"espmonitor/config"
	"espmonitor/network"
	"espmonitor/serial"
	"espmonitor/status"
	"espmonitor/stream"
)

// SessionController is the serial session as seen by the API
type SessionController interface {
	Attach(device string, baudRate int) error
	Detach() error
	Write(data []byte, appendNewline bool) error
}

// NetworkController is the router access controller as seen by the API
type NetworkController interface {
	Connect(ctx context.Context, creds network.Credentials) error
	Disconnect(ctx context.Context, creds network.Credentials) error
}

// StatusSource produces the /status body
type StatusSource interface {
	Snapshot() status.Snapshot
}

// Deps are the components the API drives
type Deps struct {
	Session     SessionController
	Network     NetworkController
	Status      StatusSource
	Broadcaster *stream.Broadcaster
	ListPorts   func() ([]serial.PortInfo, error) // defaults to serial.ListPorts
}

// Server exposes the control API and the live serial stream
type Server struct {
	cfg         config.ServerConfig
	defaultBaud int
	pingEvery   time.Duration
	writeWait   time.Duration

	session     SessionController
	network     NetworkController
	status      StatusSource
	broadcaster *stream.Broadcaster
	listPorts   func() ([]serial.PortInfo, error)

	upgrader websocket.Upgrader
	logger   *slog.Logger
	server   *http.Server
	handler  http.Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the API server. Nothing listens until Start.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	listPorts := deps.ListPorts
	if listPorts == nil {
		listPorts = serial.ListPorts
	}

	s := &Server{
		cfg:         cfg.Server,
		defaultBaud: cfg.Serial.DefaultBaudRate,
		pingEvery:   cfg.Stream.PingInterval(),
		writeWait:   cfg.Stream.WriteTimeout(),
		session:     deps.Session,
		network:     deps.Network,
		status:      deps.Status,
		broadcaster: deps.Broadcaster,
		listPorts:   listPorts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.handler = s.cors(s.routes())
	return s
}

// routes builds the router, mounted under base_path when one is configured
func (s *Server) routes() *mux.Router {
	root := mux.NewRouter()

	r := root
	if s.cfg.BasePath != "" {
		r = root.PathPrefix(s.cfg.BasePath).Subrouter()
	}

	s.serialRegister(r)
	s.networkRegister(r)
	s.statusRegister(r)
	s.streamRegister(r)

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return root
}

func (s *Server) serialRegister(r *mux.Router) {
	r.HandleFunc("/ports", s.handlePorts).Methods(http.MethodGet)
	r.HandleFunc("/attach", s.handleAttach).Methods(http.MethodPost)
	r.HandleFunc("/detach", s.handleDetach).Methods(http.MethodPost)
	r.HandleFunc("/write", s.handleWrite).Methods(http.MethodPost)
}

func (s *Server) networkRegister(r *mux.Router) {
	r.HandleFunc("/network/connect", s.handleNetworkConnect).Methods(http.MethodPost)
	r.HandleFunc("/network/disconnect", s.handleNetworkDisconnect).Methods(http.MethodPost)
}

func (s *Server) statusRegister(r *mux.Router) {
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) streamRegister(r *mux.Router) {
	r.HandleFunc("/ws/serial", s.handleSerialStream)
}

// Handler returns the full HTTP handler, CORS included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// cors applies the configured cross-origin policy. "*" echoes any origin so
// credentialed browser requests keep working.
func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.TrimSuffix(o, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens in the background
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting API server", "listen", s.cfg.Listen, "base_path", s.cfg.BasePath)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Stop closes live streams and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	// Streams watch s.ctx; cancel first so Shutdown is not held up by them
	s.cancel()

	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping API server")
	return s.server.Shutdown(shutdownCtx)
}
