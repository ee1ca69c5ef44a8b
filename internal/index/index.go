package index

// CardIndex defines the interface for card indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type CardIndex interface {
	UpsertCard(c CardRow, body string, deps []string) error
	DeleteCard(id string) error
	GetChecksum(id string) (string, error)
	GetCard(id string) (*CardRow, error)
	ListCards(filter ListFilter) ([]CardRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Dependents(id string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies CardIndex at compile time.
var _ CardIndex = (*DB)(nil)
