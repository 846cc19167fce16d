package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowscope/flowscope/internal/eventlog"
	"github.com/flowscope/flowscope/internal/expressions"
	"github.com/flowscope/flowscope/internal/layout"
	"github.com/flowscope/flowscope/internal/simulate"
	"github.com/flowscope/flowscope/pkg/schema"
)

// RunHistory is the subset of the history store the MCP tools need.
// Satisfied by *eventlog.History.
type RunHistory interface {
	GetRun(ctx context.Context, runID string) (*eventlog.Run, error)
	Runs(ctx context.Context, limit int) ([]*eventlog.Run, error)
	Events(ctx context.Context, runID string) ([]schema.RuntimeEvent, error)
}

// FlowscopeServerDeps holds the dependencies for creating a FlowscopeServer.
type FlowscopeServerDeps struct {
	History   RunHistory
	Registry  *expressions.Registry
	Simulator *simulate.Simulator
	Engine    layout.Engine
	Logger    *slog.Logger
}

// FlowscopeServer wraps an MCP server with flowscope-specific tool handlers.
type FlowscopeServer struct {
	history   RunHistory
	registry  *expressions.Registry
	simulator *simulate.Simulator
	engine    layout.Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowscopeServer creates a new FlowscopeServer with all 5 tools registered.
func NewFlowscopeServer(deps FlowscopeServerDeps) *FlowscopeServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	engine := deps.Engine
	if engine == nil {
		engine = layout.NewLayeredEngine()
	}

	s := &FlowscopeServer{
		history:   deps.History,
		registry:  deps.Registry,
		simulator: deps.Simulator,
		engine:    engine,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowscope",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowscope turns workflow definitions and run event logs into positioned graph view models. Use flowscope.describe to lay out a definition, flowscope.state for projected executor states of a run, flowscope.trace for the activation path, flowscope.simulate for a dry run, and flowscope.runs to list known runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowscopeServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowscopeServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *FlowscopeServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: describeTool(), Handler: s.handleDescribe},
		{Tool: stateTool(), Handler: s.handleState},
		{Tool: traceTool(), Handler: s.handleTrace},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: runsTool(), Handler: s.handleRuns},
	}
}

// --- Tool definitions ---

func describeTool() mcp.Tool {
	return mcp.NewTool("flowscope.describe",
		mcp.WithDescription("Validate a workflow definition and return its positioned graph view model"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object")),
		mcp.WithString("direction",
			mcp.Enum("LR", "TB"),
			mcp.Description("Layout rank direction (default: LR)"),
		),
	)
}

func stateTool() mcp.Tool {
	return mcp.NewTool("flowscope.state",
		mcp.WithDescription("Project the per-executor states of a run from its event log"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to project")),
		mcp.WithString("start_executor_id", mcp.Description("Start executor, marked running on workflow_started")),
	)
}

func traceTool() mcp.Tool {
	return mcp.NewTool("flowscope.trace",
		mcp.WithDescription("Return the executor activation sequence and traversed hops of a run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to trace")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("flowscope.simulate",
		mcp.WithDescription("Walk a workflow definition without executing anything and return the synthetic event log"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object")),
		mcp.WithObject("inputs", mcp.Description("Input bindings for transition conditions")),
	)
}

func runsTool() mcp.Tool {
	return mcp.NewTool("flowscope.runs",
		mcp.WithDescription("List known runs, newest first"),
		mcp.WithString("limit", mcp.Description("Maximum number of runs to return (default: 50)")),
		mcp.WithString("status", mcp.Enum("pending", "active", "completed", "failed"), mcp.Description("Only return runs with this status")),
	)
}
