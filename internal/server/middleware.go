package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/ytchat/internal/metrics"
)

const (
	maxParamLogLen = 200

	// Tool calls that ingest a video take seconds; only flag outliers.
	slowMCPRequest = 5 * time.Second
)

// mcpOp names the collector operation for an MCP method.
func mcpOp(method string) string { return "mcp:" + method }

// LoggingMiddleware logs every MCP request with its duration and records
// it in the collector. Slow requests log at WARN.
func LoggingMiddleware(logger *slog.Logger, collector *metrics.Collector) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)
			collector.RecordResult(mcpOp(method), duration, err)

			attrs := []any{
				"method", method,
				"duration_ms", duration.Milliseconds(),
			}
			if params := req.GetParams(); params != nil {
				attrs = append(attrs, "params", truncate(fmt.Sprintf("%+v", params), maxParamLogLen))
			}

			switch {
			case err != nil:
				logger.Error("mcp request failed", append(attrs, "error", err)...)
			case duration > slowMCPRequest:
				logger.Warn("slow mcp request", attrs...)
			default:
				logger.Debug("mcp request completed", attrs...)
			}
			return result, err
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
