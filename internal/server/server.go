// Package server is the HTTP boundary of glance. It serves the page shell,
// starts one watch session per stream request and relays the session's
// results as Server-Sent Events or websocket messages.
package server

import (
	"context"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/glance/internal/config"
	"github.com/conneroisu/glance/internal/delivery"
	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/logging"
	"github.com/conneroisu/glance/internal/reader"
	"github.com/conneroisu/glance/internal/renderer"
	"github.com/conneroisu/glance/internal/session"
	"github.com/conneroisu/glance/internal/types"
	"github.com/conneroisu/glance/internal/validation"
	"github.com/conneroisu/glance/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Server serves documents under a root directory.
type Server struct {
	config   *config.Config
	logger   logging.Logger
	root     string
	target   string
	opener   watcher.Opener
	reader   session.Reader
	renderer renderer.Renderer
	limiter  *rateLimiter
	started  time.Time

	errHandler *errors.ErrorHandler

	// ctx is the base context of every request; Shutdown cancels it so
	// open streams return.
	ctx    context.Context
	cancel context.CancelFunc

	sessions atomic.Int64

	serverMutex  sync.RWMutex
	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New creates a server from a validated configuration.
func New(cfg *config.Config, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	root, err := filepath.Abs(cfg.Server.Root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "failed to resolve server root")
	}
	if cfg.TargetFile != "" {
		target, err := filepath.Abs(cfg.TargetFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "failed to resolve target file")
		}
		// The file named on the command line must always be servable.
		if !within(root, target) {
			logger.Info(context.Background(), "Target is outside the root, serving its directory",
				"target", target, "root", root)
			root = filepath.Dir(target)
		}
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	backend, err := watcher.ParseBackend(cfg.Watch.Backend)
	if err != nil {
		return nil, err
	}
	opener, err := watcher.NewOpener(backend, watcher.Options{
		PollInterval: cfg.Watch.PollInterval,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config: cfg,
		logger: logger.WithComponent("server"),
		root:   root,
		opener: opener,
		reader: reader.New(
			reader.WithAttempts(cfg.Watch.ReadAttempts),
			reader.WithBackoff(cfg.Watch.ReadBackoff),
			reader.WithLogger(logger),
		),
		renderer: renderer.NewMarkdown(renderer.Options{
			Dangerous: cfg.Render.Dangerous,
			Emoji:     cfg.Render.Emoji,
		}),
		limiter: newRateLimiter(cfg.Server.StreamRate, cfg.Server.StreamBurst),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.errHandler = errors.NewErrorHandler(s.logger)
	s.target = s.relative(cfg.TargetFile)

	go s.limiter.run(ctx, limiterCleanupInterval)

	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	stream := s.limiter.middleware(s.logger)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /sse/{path...}", stream(http.HandlerFunc(s.handleStream)))
	mux.Handle("GET /ws/{path...}", stream(http.HandlerFunc(s.handleSocket)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{path...}", s.handlePage)

	return requestLogger(s.logger)(mux)
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Address())
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "failed to listen on "+s.config.Server.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	addr := "http://" + ln.Addr().String() + "/"
	s.logger.Info(ctx, "Serving", "url", addr, "root", s.root, "backend", s.config.Watch.Backend)

	if s.config.Server.Open {
		go s.openBrowser(ctx, addr)
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Shutdown did not complete")
		}
	})
	defer stop()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.NewInternalError(errors.ErrCodeInternalError, "server error", err)
	}

	return nil
}

// Shutdown ends every open stream and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server", "sessions", s.Sessions())
		s.cancel()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *Server) heartbeat() time.Duration {
	if s.config.Server.Heartbeat <= 0 {
		return time.Second
	}
	return s.config.Server.Heartbeat
}

// Sessions returns the number of running watch sessions.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

// startSession starts a session for the file at path, delivering into a
// fresh channel. Construction failures are returned before any response
// has been written.
func (s *Server) startSession(ctx context.Context, path string) (*delivery.Channel, error) {
	out := delivery.New(delivery.DefaultCapacity)
	sess := session.New(types.NewWatchTarget(path, s.config.Render.Dangerous), session.Dependencies{
		Source:   s.opener,
		Reader:   s.reader,
		Renderer: s.renderer,
		Ignore:   s.config.Watch.Ignore,
		Logger:   s.logger,
	})

	if err := sess.Start(ctx, out); err != nil {
		return nil, err
	}

	s.sessions.Add(1)
	go func() {
		<-sess.Done()
		s.sessions.Add(-1)
		s.errHandler.Handle(context.Background(), sess.Err(), "path", path)
	}()

	return out, nil
}

// resolve maps a request path onto a file below the root.
func (s *Server) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.ErrInvalidPath(rel)
	}

	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if !within(s.root, full) {
		return "", errors.ErrPathTraversal(rel)
	}

	// Links inside the root may not lead out of it. A missing file is
	// judged by its directory.
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		resolved, err = filepath.EvalSymlinks(filepath.Dir(full))
	}
	if err == nil && !within(s.root, resolved) {
		return "", errors.ErrPathTraversal(rel)
	}

	return full, nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	inside, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return inside != ".." && !strings.HasPrefix(inside, ".."+string(filepath.Separator))
}

// relative turns the command-line target into a slash path below the root.
func (s *Server) relative(file string) string {
	if file == "" {
		return ""
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(file))
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(file))
	}
	return filepath.ToSlash(rel)
}

func (s *Server) openBrowser(ctx context.Context, target string) {
	time.Sleep(100 * time.Millisecond)

	if err := validation.ValidateURL(target); err != nil {
		s.logger.Warn(ctx, errors.NewSecurityError(errors.ErrCodeUnsafeURL, err.Error()), "Refusing to open browser", "url", target)
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	case "darwin":
		cmd = exec.Command("open", target)
	default:
		s.logger.Warn(ctx, nil, "Opening a browser is not supported on this platform", "os", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", target)
	}
}
