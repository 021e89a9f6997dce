package core

import "fmt"

// MemoryType partitions agent memory by lifetime.
type MemoryType int

const (
	// ShortTerm holds facts relevant to the current task.
	ShortTerm MemoryType = iota
	// LongTerm holds facts kept across tasks.
	LongTerm
	// Working holds scratch values of the step in progress.
	Working
)

// String returns the snake_case name of the memory type.
func (t MemoryType) String() string {
	switch t {
	case ShortTerm:
		return "short_term"
	case LongTerm:
		return "long_term"
	case Working:
		return "working"
	default:
		return fmt.Sprintf("memory_type(%d)", int(t))
	}
}

// Memory stores typed key/value facts and the conversation of an agent, and
// offers retrieval over both. Implementations can back search with embeddings,
// keywords or any heuristic.
type Memory interface {
	Get(t MemoryType, key string) (any, bool, error)
	Put(t MemoryType, key string, value any) error
	Delete(t MemoryType, key string) error
	Keys(t MemoryType) ([]string, error)
	AddMessage(c Content) error
	Messages(limit int) ([]Content, error)
	Search(query string, limit int) ([]SearchResult, error)
	Clear(t MemoryType) error
}

// SearchResult represents a retrieved memory item with a relevance score and arbitrary metadata.
type SearchResult struct {
	ID       string
	Type     MemoryType
	Content  string
	Score    float64
	Metadata map[string]any
}
