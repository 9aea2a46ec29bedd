package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"adversarial-mcp/backend/internal/repository"
	"adversarial-mcp/backend/internal/services"
)

type Server struct {
	mcpServer *server.MCPServer
	service   *services.RefinementService
	store     repository.EntryStore
}

func NewServer(service *services.RefinementService, store repository.EntryStore) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Adversarial Code Refinement",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		service: service,
		store:   store,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"refine_code",
			mcp.WithDescription("Generate code for a prompt and iterate check/fix until it is judged bug-free"),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What the code should do")),
			mcp.WithString("language", mcp.Description("Target language, defaults to python")),
		),
		s.handleRefineCode,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"enhance_code",
			mcp.WithDescription("Generate code and interleave bug fixing with feature additions"),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What the code should do")),
			mcp.WithArray("features", mcp.Required(), mcp.Description("Ordered feature descriptions to add")),
			mcp.WithString("language", mcp.Description("Target language, defaults to python")),
		),
		s.handleEnhanceCode,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_refinement",
			mcp.WithDescription("Fetch a stored refinement entry by id"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The refinement entry id")),
		),
		s.handleGetRefinement,
	)
}

func (s *Server) handleRefineCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	prompt, ok := args["prompt"].(string)
	if !ok || prompt == "" {
		return mcp.NewToolResultError("Missing required parameter: prompt"), nil
	}
	language, _ := args["language"].(string)

	result, err := s.service.RunWorkflow(ctx, prompt, language)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Refinement failed: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleEnhanceCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	prompt, ok := args["prompt"].(string)
	if !ok || prompt == "" {
		return mcp.NewToolResultError("Missing required parameter: prompt"), nil
	}
	rawFeatures, ok := args["features"].([]interface{})
	if !ok || len(rawFeatures) == 0 {
		return mcp.NewToolResultError("Missing required parameter: features"), nil
	}
	features := make([]string, 0, len(rawFeatures))
	for _, f := range rawFeatures {
		feature, ok := f.(string)
		if !ok || feature == "" {
			return mcp.NewToolResultError("Features must be non-empty strings"), nil
		}
		features = append(features, feature)
	}
	language, _ := args["language"].(string)

	result, err := s.service.GenerateFeatureEnhancedCode(ctx, prompt, features, language)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Enhancement failed: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetRefinement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch entry: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(entry)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
