package api

import (
	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/registry"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// UpdateDocumentRequest is the request body for updating a document.
type UpdateDocumentRequest struct {
	Content string `json:"content"`
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = docservice.DocumentDetail

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem = docservice.DocumentListItem

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []DocumentListItem `json:"documents"`
	Total     int                `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// GraphResponse wraps the cross-reference graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes"`
	Edges []index.GraphEdge `json:"edges"`
}

// RegistryListResponse wraps registry entries.
type RegistryListResponse struct {
	Documents []registry.DocumentInfo `json:"documents"`
	Total     int                     `json:"total"`
}
