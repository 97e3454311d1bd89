package api

import (
	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
)

// ProcessRequest is the request body for submitting a URL.
type ProcessRequest struct {
	URL   string `json:"url"`
	Video bool   `json:"video,omitempty"`
}

// RecordListResponse wraps paginated record listings.
type RecordListResponse struct {
	Records []models.Record `json:"records"`
	Total   int             `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results"`
}

// TagsResponse wraps tag usage counts.
type TagsResponse struct {
	Tags []store.TagCount `json:"tags"`
}

// RelatedResponse wraps related-record hits.
type RelatedResponse struct {
	Related []store.RelatedResult `json:"related"`
}

// FeedRequest is the request body for subscribing a feed.
type FeedRequest struct {
	URL string `json:"url"`
}

// FeedsResponse wraps the feed subscription list.
type FeedsResponse struct {
	Feeds []models.Feed `json:"feeds"`
}
