package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpThreadID tags calls arriving over MCP in logs and traces.
const mcpThreadID = "mcp"

// RegisterMCP exposes the registry's tools on an MCP server. Calls go
// through Dispatch, so MCP clients see the same payloads as the model.
func RegisterMCP(server *mcp.Server, reg *Registry) {
	addTool[RetrieveInput](server, reg, NameRetrieve)
	addTool[SimilarInput](server, reg, NameRetrieveSimilar)
	addTool[IngestInput](server, reg, NameTriggerIngestion)
}

func addTool[In any](server *mcp.Server, reg *Registry, name string) {
	t, ok := reg.Lookup(name)
	if !ok {
		return
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        t.Name(),
		Description: t.Description(),
	}, newHandler[In](reg, name))
}

func newHandler[In any](reg *Registry, name string) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
		args, err := json.Marshal(input)
		if err != nil {
			return errorResult("Invalid arguments", err.Error()), nil, nil
		}

		out, err := reg.Dispatch(ctx, name, args, CallContext{ThreadID: mcpThreadID})
		if err != nil {
			return errorResult("Vector database unavailable", "Retry in 30 seconds"), nil, nil
		}
		if msg, failed := strings.CutPrefix(out, "error: "); failed {
			return errorResult(msg, ""), nil, nil
		}
		return textResult(out), nil, nil
	}
}

// errorResult marks the result as failed so the client can self-correct.
func errorResult(msg, hint string) *mcp.CallToolResult {
	if hint != "" {
		msg += ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
