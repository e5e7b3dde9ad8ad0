package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmmcquay/katago-web/internal/katago"
	"github.com/dmmcquay/katago-web/internal/logging"
)

// ToolsHandler exposes the engine as MCP tools. The tools mirror the HTTP API.
type ToolsHandler struct {
	engine     katago.Service
	logger     logging.ContextLogger
	middleware *Middleware
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(engine katago.Service, logger logging.ContextLogger) *ToolsHandler {
	return &ToolsHandler{
		engine: engine,
		logger: logger,
	}
}

// SetMiddleware sets the middleware for the tools handler.
func (h *ToolsHandler) SetMiddleware(middleware *Middleware) {
	h.middleware = middleware
}

// RegisterTools registers all tools with the MCP server.
func (h *ToolsHandler) RegisterTools(s *server.MCPServer) {
	analyzePositionTool := mcp.NewTool("analyzePosition",
		mcp.WithDescription("Ask KataGo for the best move and its evaluation of a Go position. Provide either a move list or SGF content."),
		mcp.WithNumber("boardSize",
			mcp.Description("Board size (2-25, default 19)"),
		),
		mcp.WithArray("moves",
			mcp.Description(`Moves from the empty board, alternating black first: {"x":3,"y":3} or {"pass":true}. x is the column and y the row from the top, both 0-based.`),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("sgf",
			mcp.Description("SGF game record to analyze instead of moves"),
		),
		mcp.WithNumber("moveNumber",
			mcp.Description("With sgf, analyze the position after this many moves. If not specified, analyzes the final position."),
		),
		mcp.WithNumber("komi",
			mcp.Description("Komi (overrides the SGF and the default)"),
		),
		mcp.WithNumber("maxVisits",
			mcp.Description("Maximum visits for analysis (overrides default)"),
		),
		mcp.WithNumber("analyzeDepth",
			mcp.Description("Maximum number of candidate moves to return"),
		),
		mcp.WithBoolean("verbose",
			mcp.Description("Return the full JSON result instead of a summary"),
		),
	)
	handler := h.HandleAnalyzePosition
	if h.middleware != nil {
		handler = h.middleware.WrapToolWithRetry("analyzePosition", handler, 2)
	}
	s.AddTool(analyzePositionTool, handler)

	getEngineStatusTool := mcp.NewTool("getEngineStatus",
		mcp.WithDescription("Get the status of the KataGo engine"),
	)
	statusHandler := h.HandleGetEngineStatus
	if h.middleware != nil {
		statusHandler = h.middleware.WrapTool("getEngineStatus", statusHandler)
	}
	s.AddTool(getEngineStatusTool, statusHandler)

	startEngineTool := mcp.NewTool("startEngine",
		mcp.WithDescription("Start the KataGo engine if not already running"),
	)
	startHandler := h.HandleStartEngine
	if h.middleware != nil {
		startHandler = h.middleware.WrapTool("startEngine", startHandler)
	}
	s.AddTool(startEngineTool, startHandler)

	stopEngineTool := mcp.NewTool("stopEngine",
		mcp.WithDescription("Stop the KataGo engine"),
	)
	stopHandler := h.HandleStopEngine
	if h.middleware != nil {
		stopHandler = h.middleware.WrapTool("stopEngine", stopHandler)
	}
	s.AddTool(stopEngineTool, stopHandler)
}

// toolContext tags ctx with fresh correlation and request IDs.
func (h *ToolsHandler) toolContext(ctx context.Context, tool string) (context.Context, logging.ContextLogger) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())
	return ctx, h.logger.WithContext(ctx).WithField("tool", tool)
}

// HandleAnalyzePosition handles the analyzePosition tool.
func (h *ToolsHandler) HandleAnalyzePosition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, logger := h.toolContext(ctx, "analyzePosition")
	logger.Info("Handling analyzePosition request")

	req, verbose, err := parseAnalyzeArguments(request.Params.Arguments)
	if err != nil {
		return nil, err
	}

	result, err := h.engine.Analyze(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	if verbose {
		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to format result: %w", err)
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
	return mcp.NewToolResultText(FormatAnalysisResult(result)), nil
}

// parseAnalyzeArguments decodes tool arguments into a request. The fields
// have the same names as the HTTP request body.
func parseAnalyzeArguments(args interface{}) (*katago.AnalysisRequest, bool, error) {
	if args == nil {
		return &katago.AnalysisRequest{}, false, nil
	}
	argsMap, ok := args.(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("%w: invalid arguments format", katago.ErrInvalidRequest)
	}

	verbose := false
	if v, ok := argsMap["verbose"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, false, fmt.Errorf("%w: verbose must be a boolean", katago.ErrInvalidRequest)
		}
		verbose = b
	}

	fields := make(map[string]interface{}, len(argsMap))
	for k, v := range argsMap {
		if k != "verbose" && k != "clientID" {
			fields[k] = v
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	var req katago.AnalysisRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", katago.ErrInvalidRequest, err)
	}
	return &req, verbose, nil
}

// HandleGetEngineStatus handles the getEngineStatus tool.
func (h *ToolsHandler) HandleGetEngineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, logger := h.toolContext(ctx, "getEngineStatus")
	logger.Info("Handling getEngineStatus request")

	st := h.engine.Status()
	logger.Debug("Engine status checked", "state", st.State.String())
	return mcp.NewToolResultText(FormatStatus(st)), nil
}

// HandleStartEngine handles the startEngine tool.
func (h *ToolsHandler) HandleStartEngine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, logger := h.toolContext(ctx, "startEngine")
	logger.Info("Handling startEngine request")

	if h.engine.Status().State == katago.StateReady {
		logger.Debug("Engine already running")
		return mcp.NewToolResultText("KataGo engine is already running"), nil
	}

	if err := h.engine.Start(ctx); err != nil {
		logger.Error("Failed to start engine", "error", err)
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	logger.Info("KataGo engine started successfully")
	return mcp.NewToolResultText("KataGo engine started successfully"), nil
}

// HandleStopEngine handles the stopEngine tool.
func (h *ToolsHandler) HandleStopEngine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, logger := h.toolContext(ctx, "stopEngine")
	logger.Info("Handling stopEngine request")

	// A starting or failed engine may still own a process.
	switch h.engine.Status().State {
	case katago.StateUninitialized, katago.StateStopped:
		logger.Debug("Engine not running")
		return mcp.NewToolResultText("KataGo engine is not running"), nil
	}

	if err := h.engine.Stop(); err != nil {
		logger.Error("Failed to stop engine", "error", err)
		return nil, fmt.Errorf("failed to stop engine: %w", err)
	}

	logger.Info("KataGo engine stopped successfully")
	return mcp.NewToolResultText("KataGo engine stopped successfully"), nil
}
