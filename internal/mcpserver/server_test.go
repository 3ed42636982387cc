package mcpserver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dagaz/internal/cache"
	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/lockmgr"
	"github.com/starford/dagaz/internal/registry"
	"github.com/starford/dagaz/internal/storage"
	"github.com/starford/dagaz/internal/txn"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "dagaz-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	stateDir := t.TempDir()
	locks := lockmgr.NewManager()
	reg := registry.New(filepath.Join(stateDir, "registry.json"), locks)
	metaCache := cache.NewStorage(filepath.Join(stateDir, "cache.json"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := docservice.NewService(store, db, reg, metaCache, txn.NewManager(locks, logger), logger)

	return New(svc)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_documents":
		result, err = srv.searchDocuments(ctx, req)
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "create_document":
		result, err = srv.createDocument(ctx, req)
	case "get_document_contract":
		result, err = srv.getDocumentContract(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "registry_lookup":
		result, err = srv.registryLookup(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadDocument(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_document", map[string]interface{}{
		"path":    "test.md",
		"content": "# Test\nHello",
	})
	text := resultText(r)
	if text != "created: test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_document", map[string]interface{}{
		"path": "test.md",
	})
	text = resultText(r)
	if text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateDuplicateDocument(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_document", map[string]interface{}{
		"path": "a.md", "content": "# A",
	})
	r := callTool(t, srv, "create_document", map[string]interface{}{
		"path": "a.md", "content": "# A again",
	})
	if !r.IsError {
		t.Error("expected error for duplicate create")
	}
}

func TestReadDocumentMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_document", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}
}

func TestListDocuments(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "list_documents", map[string]interface{}{})
	if resultText(r) != "no documents registered" {
		t.Errorf("empty list result = %q", resultText(r))
	}

	_ = callTool(t, srv, "create_document", map[string]interface{}{
		"path": "a.md", "content": "# A",
	})
	r = callTool(t, srv, "list_documents", map[string]interface{}{})
	if !strings.HasPrefix(resultText(r), "a.md\t") {
		t.Errorf("list result = %q", resultText(r))
	}
}

func TestSearchDocuments(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_document", map[string]interface{}{
		"path":    "plan.md",
		"content": "# Degree Plan\ncredit requirements for graduation",
	})

	r := callTool(t, srv, "search_documents", map[string]interface{}{"query": "graduation"})
	if !strings.Contains(resultText(r), "plan.md") {
		t.Errorf("search result = %q", resultText(r))
	}
}

func TestGetBacklinks(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_document", map[string]interface{}{
		"path":    "a.md",
		"content": "links to [[b]]",
	})

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "b"})
	if resultText(r) != "a.md" {
		t.Errorf("backlinks = %q, want a.md", resultText(r))
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "nothing"})
	if resultText(r) != "no backlinks found" {
		t.Errorf("no backlinks result = %q", resultText(r))
	}
}

func TestRegistryLookup(t *testing.T) {
	srv := testServer(t)
	content := "# Shared\n"
	_ = callTool(t, srv, "create_document", map[string]interface{}{
		"path": "orig.md", "content": content,
	})
	_ = callTool(t, srv, "create_document", map[string]interface{}{
		"path": "copy.md", "content": content,
	})

	sum := checksum.Sum([]byte(content))
	r := callTool(t, srv, "registry_lookup", map[string]interface{}{"checksum": sum})
	text := resultText(r)
	if !strings.Contains(text, "orig.md") || !strings.Contains(text, "copy.md") {
		t.Errorf("lookup result = %q", text)
	}

	r = callTool(t, srv, "registry_lookup", map[string]interface{}{"checksum": "none"})
	if resultText(r) != "no documents with that checksum" {
		t.Errorf("miss result = %q", resultText(r))
	}
}

func TestGetDocumentContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_document_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "frontmatter") {
		t.Errorf("contract = %q", resultText(r))
	}
}
