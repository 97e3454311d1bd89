// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes KnowledgeHub capture and browse tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JohnTocci/KnowledgeHub/internal/pipeline"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
	"github.com/JohnTocci/KnowledgeHub/internal/vault"
)

// Server wraps the MCP server with KnowledgeHub tools.
type Server struct {
	mcp    *server.MCPServer
	runner *pipeline.Runner
	db     store.RecordStore
	store  vault.Provider
}

// New creates a new MCP server with all tools registered.
func New(runner *pipeline.Runner, db store.RecordStore, v vault.Provider) *Server {
	s := &Server{runner: runner, db: db, store: v}

	s.mcp = server.NewMCPServer(
		"KnowledgeHub",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("capture_url",
		mcp.WithDescription("Capture a URL into the knowledge base: fetch the article "+
			"(or transcribe the video), summarize it, and save a Markdown note."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The http(s) URL to capture")),
		mcp.WithString("video", mcp.Description("Set to 'true' to force the video/transcription path")),
	), s.captureURL)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Full-text search over captured record titles, summaries and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full Markdown content of a saved note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. My-Article.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List captured records, newest first, with optional tag filter."),
		mcp.WithString("tag", mcp.Description("Optional tag to filter by")),
		mcp.WithString("limit", mcp.Description("Max records to return (default 20)")),
	), s.listRecords)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) captureURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	forceVideo := false
	if v, verr := req.RequireString("video"); verr == nil {
		forceVideo = v == "true"
	}

	rec, err := s.runner.Process(ctx, rawURL, forceVideo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("capture failed: %v", err)), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if raw, lerr := req.RequireString("limit"); lerr == nil {
		if n, perr := strconv.Atoi(raw); perr == nil && n > 0 {
			limit = n
		}
	}
	tag := ""
	if t, terr := req.RequireString("tag"); terr == nil {
		tag = t
	}
	records, total, err := s.db.List(store.Query{
		Tag:   tag,
		Limit: limit,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload := map[string]any{"records": records, "total": total}
	out, _ := json.MarshalIndent(payload, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
