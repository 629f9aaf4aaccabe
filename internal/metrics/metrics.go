// ABOUTME: Prometheus collectors for tool calls, model calls and row inserts
// ABOUTME: Registered on the default registry and served at /metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaindex_tool_calls_total",
		Help: "MCP tool invocations by tool and outcome.",
	}, []string{"tool", "status"})

	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaindex_tool_duration_seconds",
		Help:    "MCP tool latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"tool"})

	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaindex_model_calls_total",
		Help: "External model calls by kind (embed, transcribe, caption) and outcome.",
	}, []string{"kind", "status"})

	RowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaindex_rows_inserted_total",
		Help: "Rows committed per table or view.",
	}, []string{"table"})
)

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// ObserveTool records one tool invocation
func ObserveTool(tool string, start time.Time, failed bool) {
	s := StatusOK
	if failed {
		s = StatusError
	}
	ToolCalls.WithLabelValues(tool, s).Inc()
	ToolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}

// ObserveModel records one external model call
func ObserveModel(kind string, err error) {
	ModelCalls.WithLabelValues(kind, status(err)).Inc()
}

// AddRows counts committed rows for a table
func AddRows(table string, n int) {
	if n > 0 {
		RowsInserted.WithLabelValues(table).Add(float64(n))
	}
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
