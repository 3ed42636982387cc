package index

// DocumentIndex defines the interface for document indexing operations.
// Consumers should depend on this interface rather than the concrete
// *DB type to facilitate testing with mocks.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow, body string, refs []string) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocumentRow, error)
	ListDocuments(limit, offset int, tag, sort string) ([]DocumentRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphEdge, error)
	Backlinks(target string) ([]string, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
