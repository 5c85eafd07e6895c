package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raphaelgruber/ytchat/internal/index"
	"github.com/raphaelgruber/ytchat/internal/metrics"
)

var tracer = otel.Tracer("ytchat/tools")

// Registry maps tool names to tools.
type Registry struct {
	tools   map[string]Tool
	order   []string
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewRegistry registers tools in the given order. Duplicate names panic.
func NewRegistry(collector *metrics.Collector, logger *slog.Logger, tools ...Tool) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		metrics: collector,
		logger:  logger,
	}
	for _, t := range tools {
		if _, dup := r.tools[t.Name()]; dup {
			panic("tools: duplicate tool " + t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tool schemas for the completion request.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// ErrorPayload formats err as a tool result the model can read.
func ErrorPayload(err error) string {
	return "error: " + err.Error()
}

// Dispatch executes the named tool. Every failure becomes an error payload
// in the returned string, except index.ErrBackendUnavailable, which is
// returned so the caller can report the outage.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage, cc CallContext) (out string, err error) {
	tool, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name, "thread_id", cc.ThreadID)
		return ErrorPayload(fmt.Errorf("unknown tool %q", name)), nil
	}

	ctx, span := tracer.Start(ctx, "tool."+name)
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", cc.ThreadID))

	start := time.Now()
	out, err = r.execute(ctx, tool, args, cc)
	r.metrics.RecordResult(metrics.OpToolCall, time.Since(start), err)

	if err == nil {
		r.logger.Debug("tool executed", "tool", name, "thread_id", cc.ThreadID, "duration", time.Since(start))
		return out, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, index.ErrBackendUnavailable) {
		return "", err
	}
	r.logger.Warn("tool failed", "tool", name, "thread_id", cc.ThreadID, "error", err)
	return ErrorPayload(err), nil
}

func (r *Registry) execute(ctx context.Context, tool Tool, args json.RawMessage, cc CallContext) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.Inc(metrics.CounterPanicsRecovered)
			err = fmt.Errorf("tool %s panicked: %v", tool.Name(), p)
		}
	}()
	return tool.Execute(ctx, args, cc)
}
