// ABOUTME: HTTP service hosting the MCP SSE transport per index kind
// ABOUTME: Also serves health checks and Prometheus metrics, and shuts down gracefully
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/mediaindex/internal/metrics"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests
const ShutdownTimeout = 10 * time.Second

// Options configures the HTTP service
type Options struct {
	Host string
	Port int
	// BaseURL is the public origin announced to SSE clients. Empty announces
	// relative message endpoints.
	BaseURL string
	// Metrics exposes GET /metrics
	Metrics bool
	// AccessLog logs every request
	AccessLog bool
}

// Mount binds an MCP server under a path prefix such as /audio
type Mount struct {
	Path   string
	Server *mcpserver.MCPServer
}

// Server is the echo application with its SSE transports
type Server struct {
	echo   *echo.Echo
	addr   string
	mounts []string
	sse    []*mcpserver.SSEServer
}

// New builds the HTTP service for the given mounts
func New(opts Options, mounts ...Mount) (*Server, error) {
	if len(mounts) == 0 {
		return nil, errors.New("no MCP servers to mount")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if opts.AccessLog {
		e.Use(middleware.Logger())
	}
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		echo: e,
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
	}

	seen := map[string]bool{}
	for _, m := range mounts {
		path := "/" + strings.Trim(m.Path, "/")
		if path == "/" {
			path = ""
		}
		if seen[path] {
			return nil, fmt.Errorf("path %q mounted twice", m.Path)
		}
		seen[path] = true

		sseOpts := []mcpserver.SSEOption{mcpserver.WithStaticBasePath(path)}
		if opts.BaseURL != "" {
			sseOpts = append(sseOpts, mcpserver.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
		}
		sse := mcpserver.NewSSEServer(m.Server, sseOpts...)
		e.GET(path+"/sse", echo.WrapHandler(sse.SSEHandler()))
		e.POST(path+"/message", echo.WrapHandler(sse.MessageHandler()))

		s.sse = append(s.sse, sse)
		s.mounts = append(s.mounts, path)
	}

	e.GET("/", s.health)
	e.GET("/healthz", s.health)
	if opts.Metrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr is the listen address
func (s *Server) Addr() string {
	return s.addr
}

// Run serves until ctx is cancelled, then drains connections
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Serving MCP over SSE on %s (%s)", s.addr, strings.Join(s.endpoints(), ", "))
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down HTTP service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	// Open SSE streams never go idle, so end the sessions before draining
	for _, sse := range s.sse {
		if err := sse.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: failed to close SSE sessions: %v", err)
		}
	}
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) endpoints() []string {
	out := make([]string, len(s.mounts))
	for i, m := range s.mounts {
		out[i] = m + "/sse"
	}
	return out
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"endpoints": s.endpoints(),
	})
}

func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	if code >= http.StatusInternalServerError {
		req := c.Request()
		log.Printf("%d %s %s: %v", code, req.Method, req.URL.Path, err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}
