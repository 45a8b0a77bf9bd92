// Package toolserver declares the MCP tools exposed to the LLM client
// and turns each invocation into one Command Envelope lifecycle: enqueue,
// wait for the Studio result, answer.
package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lydakis/studiomcp/internal/dispatch"
)

// Version is set at build time via ldflags.
var Version = "dev"

const instructions = "Use run_code to query data from the Roblox Studio place or to change it"

// maxTraversalDepth bounds get_project_structure's max_depth argument.
const maxTraversalDepth = 20

// Tools bridges MCP tool invocations onto the shared dispatch state.
type Tools struct {
	state  *dispatch.State
	logger *slog.Logger
}

// New builds the MCP server with all Studio tools registered.
func New(state *dispatch.State, logger *slog.Logger) *server.MCPServer {
	t := &Tools{state: state, logger: logger}

	s := server.NewMCPServer(
		"studiomcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s.AddTool(mcp.NewTool("run_code",
		mcp.WithDescription("Runs a command in Roblox Studio and returns the printed output. Can be used to both make changes and retrieve information"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Code to run"),
		),
	), t.handleRunCode)

	s.AddTool(mcp.NewTool("insert_model",
		mcp.WithDescription("Inserts a model from the Roblox marketplace into the workspace. Returns the inserted model name."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Query to search for the model"),
		),
	), t.handleInsertModel)

	s.AddTool(mcp.NewTool("delete_part",
		mcp.WithDescription("Deletes a part from the workspace by name"),
		mcp.WithString("part_name",
			mcp.Required(),
			mcp.Description("Name of the part to delete"),
		),
	), t.handleDeletePart)

	s.AddTool(mcp.NewTool("get_project_structure",
		mcp.WithDescription("Gets project structure with configurable detail level"),
		mcp.WithString("detail",
			mcp.Required(),
			mcp.Description("Detail level: 'minimal' or 'detailed'"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum traversal depth (default: 5, max: 20)"),
		),
		mcp.WithString("root_path",
			mcp.Description("Root path to start from (e.g. 'Workspace.Model1')"),
		),
	), t.handleGetProjectStructure)

	return s
}

func (t *Tools) handleRunCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return t.run(ctx, dispatch.Args{RunCode: &dispatch.RunCode{Command: command}})
}

func (t *Tools) handleInsertModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return t.run(ctx, dispatch.Args{InsertModel: &dispatch.InsertModel{Query: query}})
}

func (t *Tools) handleDeletePart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	partName, err := req.RequireString("part_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return t.run(ctx, dispatch.Args{DeletePart: &dispatch.DeletePart{PartName: partName}})
}

func (t *Tools) handleGetProjectStructure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	detail, err := req.RequireString("detail")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := &dispatch.GetProjectStructure{Detail: detail}
	// An explicit max_depth is forwarded even when zero; only absence
	// means "host default".
	if raw, present := req.GetArguments()["max_depth"]; present {
		depth, ok := raw.(float64)
		if !ok || depth != math.Trunc(depth) || depth < 0 || depth > maxTraversalDepth {
			return mcp.NewToolResultError(fmt.Sprintf("max_depth must be an integer between 0 and %d", maxTraversalDepth)), nil
		}
		d := uint32(depth)
		args.MaxDepth = &d
	}
	if root := req.GetString("root_path", ""); root != "" {
		args.RootPath = &root
	}
	return t.run(ctx, dispatch.Args{GetProjectStructure: args})
}

// run is the shared invocation path: wrap args in a fresh envelope, queue
// it, and suspend until the result channel yields. A host-reported
// failure becomes a tool-level error result, never a transport error, so
// the calling agent always gets a structured answer.
func (t *Tools) run(ctx context.Context, args dispatch.Args) (*mcp.CallToolResult, error) {
	env, id := dispatch.NewEnvelope(args)
	t.logger.Debug("queueing command", "id", id)

	ch, err := t.state.Enqueue(env)
	if err != nil {
		return nil, err
	}
	// Normally Complete already removed the entry; this covers the
	// cancellation path and stale entries.
	defer t.state.Abandon(id)

	select {
	case out := <-ch:
		t.logger.Debug("command finished", "id", id, "error", out.Err)
		if out.Err != nil {
			return mcp.NewToolResultError(out.Err.Error()), nil
		}
		return mcp.NewToolResultText(out.Response), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
