// Package search finds topics by title, tag or uploaded content.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	TopicID   string  `json:"topicId"`
	ModuleID  string  `json:"moduleId"`
	Title     string  `json:"title"`
	Excerpt   string  `json:"excerpt"`
	Relevance float64 `json:"relevance"`
}

// Query describes a search request.
type Query struct {
	Text     string
	ModuleID string // empty = all modules
	Limit    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// TopicRecord is the data we index for a topic.
type TopicRecord struct {
	ID       string   `json:"id"`
	ModuleID string   `json:"moduleId"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	Content  string   `json:"content"`
}

// Engine is a full-text index that can be unavailable at times.
type Engine interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexTopics(records []TopicRecord) error
	DeleteTopic(id string) error
}

const defaultLimit = 20

func limitOf(q Query) int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}
