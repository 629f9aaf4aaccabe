// ABOUTME: Serve command runs the HTTP service with MCP over SSE
// ABOUTME: One mount per index kind under its path prefix (/audio, /video, /image, /doc)
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harper/mediaindex/internal/config"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/server"
)

var (
	serveKind    string
	serveHost    string
	servePort    int
	serveBaseURL string
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over HTTP/SSE",
		Long: `Serve MCP tools over HTTP using the SSE transport.

Each index kind is mounted under its own path prefix so a path-routed
load balancer can send /audio, /video, /image and /doc to separate
replicas. Health checks answer on / and /healthz, and Prometheus
metrics on /metrics.

Default ports: audio 8080, video 8081, image 8082, doc 8083.`,
		Example: `  # Audio service on its default port
  mediaindex serve --kind audio

  # Every kind in one process
  mediaindex serve --kind all --port 9000`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveKind, "kind", "audio", "Index kind to serve: audio, video, image, doc or all")
	cmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "Listen host")
	cmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default depends on --kind)")
	cmd.Flags().StringVar(&serveBaseURL, "base-url", "", "Public origin announced to SSE clients")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(serveKind)
	if err != nil {
		return err
	}
	port, err := resolvePort(kinds, servePort)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	mounts, err := buildMounts(rt, kinds)
	if err != nil {
		return err
	}
	srv, err := server.New(server.Options{
		Host:      serveHost,
		Port:      port,
		BaseURL:   serveBaseURL,
		Metrics:   rt.cfg.MetricsEnabled,
		AccessLog: verbose,
	}, mounts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// buildMounts gives each kind its own MCP server under its service path
func buildMounts(rt *runtimeResources, kinds []models.IndexKind) ([]server.Mount, error) {
	mounts := make([]server.Mount, 0, len(kinds))
	for _, kind := range kinds {
		svc, ok := config.ServiceFor(kind)
		if !ok {
			return nil, fmt.Errorf("no service binding for kind %s", kind)
		}
		mounts = append(mounts, server.Mount{
			Path:   svc.Path,
			Server: rt.newMCPServer([]models.IndexKind{kind}),
		})
	}
	return mounts, nil
}

// resolvePort picks the explicit port or the kind's default. Several kinds
// in one process default to the first kind's port.
func resolvePort(kinds []models.IndexKind, port int) (int, error) {
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port must be 0-65535, got %d", port)
	}
	if port != 0 {
		return port, nil
	}
	if len(kinds) == 0 {
		return 0, fmt.Errorf("no index kinds selected")
	}
	svc, ok := config.ServiceFor(kinds[0])
	if !ok {
		return 0, fmt.Errorf("no service binding for kind %s", kinds[0])
	}
	return svc.Port, nil
}
