package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/infoboard/infoboard/pkg/logger"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr string
	// AdminToken guards /rpc. Empty disables the admin surface.
	AdminToken string
	Version    string
	Commit     string
	BuildType  string
	// AllowedOrigins are the host patterns accepted on /display/ws besides
	// the server's own origin.
	AllowedOrigins []string
}

// Server exposes the display websocket, the admin JSON-RPC endpoint and
// the object store over HTTP.
type Server struct {
	cfg      Config
	log      logger.Logger
	rpc      *RPCServer
	surface  *Surface
	notifier *RPCNotifier
	objects  http.Handler

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// New creates a Server. objects may be nil when blobs are served elsewhere.
func New(cfg Config, l logger.Logger, d Display, mr ManifestReader, s *Surface, n *RPCNotifier, objects http.Handler) *Server {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Server{
		cfg:      cfg,
		log:      l,
		rpc:      NewRPCServer(&cfg, d, mr),
		surface:  s,
		notifier: n,
		objects:  objects,
	}
}

// Handler returns the routing for all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/display/ws", s.handleDisplay)
	mux.Handle("/rpc", requireToken(s.cfg.AdminToken, s.rpc.bridge))
	if s.objects != nil {
		mux.Handle("/objects/", http.StripPrefix("/objects", s.objects))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// handleDisplay serves one display for the life of its websocket. The
// display receives the current screen first and every push after that.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, &cws.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.Warning("server: display websocket: %v", err)
		return
	}
	ctx := r.Context()
	ch := &wsChannel{conn: conn, ctx: ctx}
	srv := jrpc2.NewServer(s.rpc.displayMethods(), &jrpc2.ServerOptions{
		AllowPush: true,
	}).Start(ch)

	s.log.Info("server: display connected from %s", r.RemoteAddr)
	if err := s.surface.Attach(ctx, srv); err != nil {
		srv.Stop()
	}
	_ = srv.Wait()
	s.notifier.Unregister(srv)
	s.log.Info("server: display %s disconnected", r.RemoteAddr)
}

// Start listens until Shutdown is called. It returns nil at once if
// Shutdown already ran.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.ToStdLogger(s.log),
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("server: listening on %s", s.cfg.Addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the listener and the admin bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.rpc.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
