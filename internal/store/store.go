package store

import "github.com/JohnTocci/KnowledgeHub/internal/models"

// Query selects records for the dashboard. Zero values mean "no filter".
type Query struct {
	Text   string // free-text match across title/summary/tags
	Tag    string // exact tag membership
	Kind   models.SourceKind
	Limit  int
	Offset int
}

// SearchResult is one full-text search hit.
type SearchResult struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// RelatedResult is one record that shares tags with a source record,
// ordered by how many tags overlap.
type RelatedResult struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	FilePath   string `json:"file_path"`
	SharedTags int    `json:"shared_tags"`
}

// TagCount is one tag with its usage count.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarises the store for the dashboard analytics view.
type Stats struct {
	Total   int            `json:"total"`
	ByKind  map[string]int `json:"by_kind"`
	TopTags []TagCount     `json:"top_tags"`
}

// RecordStore defines the persistence operations the pipeline and the API
// depend on. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with mocks.
type RecordStore interface {
	Insert(rec *models.Record) (int64, error)
	Get(id int64) (*models.Record, error)
	GetByPath(filePath string) (*models.Record, error)
	List(q Query) ([]models.Record, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Related(id int64, limit int) ([]RelatedResult, error)
	Delete(id int64) error
	DeleteByPath(filePath string) error
	AllPaths() (map[string]struct{}, error)
	AllTags() ([]TagCount, error)
	ContentStats() (*Stats, error)
	Close() error
}

// FeedStore defines the feed subscription operations used by the feed
// refresher and the API layer.
type FeedStore interface {
	AddFeed(url string) (*models.Feed, error)
	ListFeeds() ([]models.Feed, error)
	RemoveFeed(id int64) error
	TouchFeed(id int64, title string) error
	SeenItem(feedID int64, itemURL string) (bool, error)
	MarkItemSeen(feedID int64, itemURL string) error
}

// Verify *DB satisfies both store interfaces at compile time.
var (
	_ RecordStore = (*DB)(nil)
	_ FeedStore   = (*DB)(nil)
)
