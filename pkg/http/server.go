package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"SignalDesk/pkg/http/middleware"
	applogger "SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerOption func(*serverConfig)

type serverConfig struct {
	port          int
	readTimeout   time.Duration
	writeTimeout  time.Duration
	allowOrigins  []string
	metricsPath   string
	slowThreshold time.Duration
	log           *applogger.Logger
}

func WithPort(port int) ServerOption {
	return func(c *serverConfig) { c.port = port }
}

// WithTimeouts sets the read and write timeouts of plain requests. Upgraded websocket
// connections manage their own deadlines.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.readTimeout = read
		c.writeTimeout = write
	}
}

// WithAllowOrigins enables CORS for origins. "*" allows any origin.
func WithAllowOrigins(origins []string) ServerOption {
	return func(c *serverConfig) { c.allowOrigins = origins }
}

// WithMetricsPath sets the Prometheus scrape path. Empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(c *serverConfig) { c.metricsPath = path }
}

// WithSlowThreshold sets the latency above which requests are logged as slow.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		if d > 0 {
			c.slowThreshold = d
		}
	}
}

func WithServerLogger(l *applogger.Logger) ServerOption {
	return func(c *serverConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// Server is the Echo instance serving the REST API, the websocket stream and metrics.
type Server struct {
	echo *echo.Echo
	port int
	log  *applogger.Logger
	addr net.Addr
}

func NewServer(handler Handler, opts ...ServerOption) *Server {
	cfg := serverConfig{
		port:          8080,
		readTimeout:   10 * time.Second,
		writeTimeout:  10 * time.Second,
		metricsPath:   "/metrics",
		slowThreshold: time.Second,
		log:           applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.readTimeout
	e.Server.WriteTimeout = cfg.writeTimeout

	e.Use(middleware.Recover(cfg.log))
	e.Use(middleware.Metrics(cfg.log, cfg.slowThreshold))
	e.Use(middleware.RequestLogging(cfg.log))
	if len(cfg.allowOrigins) > 0 {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: cfg.allowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if cfg.metricsPath != "" {
		e.GET(cfg.metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	return &Server{echo: e, port: cfg.port, log: cfg.log}
}

// Start binds the port and serves in the background. A bind failure is returned here
// instead of surfacing later in the serve goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on %d: %w", s.port, err)
	}
	s.addr = ln.Addr()
	s.echo.Listener = ln

	go func() {
		s.log.Info("http server listening", applogger.String("addr", s.addr.String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", applogger.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start returned.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
