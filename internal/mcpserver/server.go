// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Dagaz document tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dagaz/internal/docservice"
)

// Server wraps the MCP server with Dagaz tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all Dagaz tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Dagaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full content of a Markdown document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. folder/doc.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new Markdown document at the specified path. "+
			"Content MUST follow the canonical document format (YAML frontmatter with title, "+
			"optional tags, Markdown body with [[references]]). Read the contract first via "+
			"the get_document_contract tool or the dagaz://document-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new document (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the Dagaz document format contract")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the canonical Dagaz document format contract. "+
			"Call this before creating or updating documents to ensure correct structure."),
	), s.getDocumentContract)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all registered documents with their checksums."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all documents that reference the specified document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the document to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("registry_lookup",
		mcp.WithDescription("Look up documents in the registry by content checksum, "+
			"used to detect duplicate documents."),
		mcp.WithString("checksum", mcp.Required(), mcp.Description("Hex-encoded SHA-256 content checksum")),
	), s.registryLookup)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource("dagaz://document-format", "Document Format Contract",
			mcp.WithResourceDescription("Canonical Markdown document format that all documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
	)

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

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(doc.Content), nil
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.svc.CreateDocument(ctx, path, []byte(content)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs := s.svc.Registry().List()

	var lines []string
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("%s\t%s", d.Path, d.Checksum))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no documents registered"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getDocumentContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readDocumentFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dagaz://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) registryLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := req.RequireString("checksum")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docs := s.svc.Registry().FindByChecksum(sum)
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents with that checksum"), nil
	}
	out, _ := json.MarshalIndent(docs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
