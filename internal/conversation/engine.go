// Package conversation runs the tool-calling question answering loop over
// per-thread message histories.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raphaelgruber/ytchat/internal/metrics"
	"github.com/raphaelgruber/ytchat/internal/models"
	"github.com/raphaelgruber/ytchat/internal/tools"
)

var tracer = otel.Tracer("ytchat/conversation")

var (
	// ErrIterationLimit is returned when the model keeps requesting tools
	// past the configured number of completion calls.
	ErrIterationLimit = errors.New("conversation iteration limit reached")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query is required")

	// ErrNoChoices is returned when the model answers with no choices.
	ErrNoChoices = errors.New("model returned no choices")
)

// DefaultSystemPrompt instructs the model how to use the tools.
const DefaultSystemPrompt = `You answer questions about YouTube videos using their transcripts.
Use the retrieve tool to look up what the video says before answering, and base your answer on the retrieved passages.
If the user refers to a video that has not been indexed, call trigger_ingestion with its URL first, then retrieve.
Use retrieve_similar_videos to find other indexed videos on a topic.
If the transcript does not contain the answer, say so.`

// Dispatcher executes tools requested by the model.
type Dispatcher interface {
	Definitions() []llms.Tool
	Dispatch(ctx context.Context, name string, args json.RawMessage, cc tools.CallContext) (string, error)
}

// Config tunes the loop.
type Config struct {
	MaxIterations     int
	CompletionTimeout time.Duration
	SystemPrompt      string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     8,
		CompletionTimeout: 60 * time.Second,
		SystemPrompt:      DefaultSystemPrompt,
	}
}

// Request is one user turn.
type Request struct {
	ThreadID string
	Query    string
	VideoID  string
}

// Response is the outcome of one user turn.
type Response struct {
	Answer     string            `json:"answer"`
	ThreadID   string            `json:"thread_id"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	Iterations int               `json:"iterations"`
}

// Engine runs conversations. Safe for concurrent use; invocations on the
// same thread run one at a time.
type Engine struct {
	model   llms.Model
	tools   Dispatcher
	threads *ThreadStore
	lanes   *lanes
	cfg     Config
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an engine with an empty thread store.
func NewEngine(model llms.Model, dispatcher Dispatcher, cfg Config, collector *metrics.Collector, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		model:   model,
		tools:   dispatcher,
		threads: NewThreadStore(),
		lanes:   newLanes(),
		cfg:     cfg,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// History returns a copy of a thread's messages.
func (e *Engine) History(threadID string) []models.Message {
	return e.threads.History(threadID)
}

// Threads returns the number of known threads.
func (e *Engine) Threads() int {
	return e.threads.Len()
}

// Invoke appends the query to the thread and runs the model until it
// answers without requesting tools.
func (e *Engine) Invoke(ctx context.Context, req Request) (resp *Response, err error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	ctx, span := tracer.Start(ctx, "conversation.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("thread_id", req.ThreadID),
		attribute.String("video_id", req.VideoID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	release, err := e.lanes.acquire(ctx, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("wait for thread %s: %w", req.ThreadID, err)
	}
	defer release()

	e.threads.Append(req.ThreadID, models.Message{
		Role:      models.RoleUser,
		Content:   req.Query,
		CreatedAt: e.now(),
	})

	resp = &Response{ThreadID: req.ThreadID}
	cc := tools.CallContext{ThreadID: req.ThreadID, VideoID: req.VideoID}
	defs := e.tools.Definitions()

	for resp.Iterations < e.cfg.MaxIterations {
		resp.Iterations++

		choice, err := e.complete(ctx, req.ThreadID, defs)
		if err != nil {
			return nil, err
		}

		if len(choice.ToolCalls) == 0 {
			e.threads.Append(req.ThreadID, models.Message{
				Role:      models.RoleAssistant,
				Content:   choice.Content,
				CreatedAt: e.now(),
			})
			resp.Answer = choice.Content
			span.SetAttributes(attribute.Int("iterations", resp.Iterations))
			e.logger.Debug("conversation answered",
				"thread_id", req.ThreadID,
				"iterations", resp.Iterations,
				"tool_calls", len(resp.ToolCalls),
			)
			return resp, nil
		}

		calls := make([]models.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			calls[i] = fromLLMToolCall(tc)
		}
		e.threads.Append(req.ThreadID, models.Message{
			Role:      models.RoleAssistant,
			Content:   choice.Content,
			ToolCalls: calls,
			CreatedAt: e.now(),
		})

		for i := range calls {
			call := &calls[i]
			result, err := e.tools.Dispatch(ctx, call.Name, call.Arguments, cc)
			content := result
			if err != nil {
				call.Error = err.Error()
				content = tools.ErrorPayload(err)
			} else {
				call.Result = result
				if msg, failed := strings.CutPrefix(result, "error: "); failed {
					call.Error = msg
				}
			}

			// Every requested call gets a tool message, so the history stays
			// valid even when the turn aborts below.
			e.threads.Append(req.ThreadID, models.Message{
				Role:       models.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Name,
				CreatedAt:  e.now(),
			})
			resp.ToolCalls = append(resp.ToolCalls, *call)

			if err != nil {
				for _, skipped := range calls[i+1:] {
					e.threads.Append(req.ThreadID, models.Message{
						Role:       models.RoleTool,
						Content:    "error: skipped",
						ToolCallID: skipped.ID,
						Name:       skipped.Name,
						CreatedAt:  e.now(),
					})
				}
				return nil, fmt.Errorf("tool %s: %w", call.Name, err)
			}
		}
	}

	e.metrics.Inc(metrics.CounterIterationLimit)
	e.logger.Warn("conversation iteration limit reached",
		"thread_id", req.ThreadID,
		"iterations", resp.Iterations,
	)
	return nil, fmt.Errorf("%w after %d model calls", ErrIterationLimit, resp.Iterations)
}

// complete sends the thread to the model under the completion deadline.
func (e *Engine) complete(ctx context.Context, threadID string, defs []llms.Tool) (*llms.ContentChoice, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CompletionTimeout)
	defer cancel()

	messages := e.buildMessages(e.threads.History(threadID))

	var opts []llms.CallOption
	if len(defs) > 0 {
		opts = append(opts, llms.WithTools(defs))
	}
	out, err := e.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	if out == nil || len(out.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return out.Choices[0], nil
}

func (e *Engine) buildMessages(history []models.Message) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+1)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, e.cfg.SystemPrompt))
	for _, m := range history {
		messages = append(messages, toLLMMessage(m))
	}
	return messages
}

func toLLMMessage(m models.Message) llms.MessageContent {
	switch m.Role {
	case models.RoleUser:
		return llms.TextParts(llms.ChatMessageTypeHuman, m.Content)
	case models.RoleSystem:
		return llms.TextParts(llms.ChatMessageTypeSystem, m.Content)
	case models.RoleTool:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
				Content:    m.Content,
			}},
		}
	default:
		msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if m.Content != "" {
			msg.Parts = append(msg.Parts, llms.TextContent{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			msg.Parts = append(msg.Parts, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		return msg
	}
}

func fromLLMToolCall(tc llms.ToolCall) models.ToolCall {
	call := models.ToolCall{ID: tc.ID}
	if call.ID == "" {
		call.ID = "call_" + uuid.NewString()[:8]
	}
	args := "{}"
	if tc.FunctionCall != nil {
		call.Name = tc.FunctionCall.Name
		if strings.TrimSpace(tc.FunctionCall.Arguments) != "" {
			args = tc.FunctionCall.Arguments
		}
	}
	if !json.Valid([]byte(args)) {
		// Keep history JSON-safe; the tool reports the bad arguments.
		quoted, _ := json.Marshal(args)
		args = string(quoted)
	}
	call.Arguments = json.RawMessage(args)
	return call
}
