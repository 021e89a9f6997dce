package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/coagent/core"
)

var _ core.Memory = (*Store)(nil)

// Store is a process‑local core.Memory. It offers:
//  1. Typed key/value memory (short term, long term, working)
//  2. An append-only conversation log
//  3. Case-insensitive substring Search over both
//
// Concurrency: protected by RWMutex.
// Search assigns a constant score of 1.0 to every hit; swap in a semantic
// index for real retrieval.
type Store struct {
	mu       sync.RWMutex
	values   map[core.MemoryType]map[string]any
	messages []core.Content
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[core.MemoryType]map[string]any)}
}

// Get returns the value stored under key.
func (s *Store) Get(t core.MemoryType, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[t][key]
	return v, ok, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(t core.MemoryType, key string, value any) error {
	if key == "" {
		return fmt.Errorf("memory key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[t] == nil {
		s.values[t] = make(map[string]any)
	}
	s.values[t][key] = value
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(t core.MemoryType, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values[t], key)
	return nil
}

// Keys returns the keys of memory type t in sorted order.
func (s *Store) Keys(t core.MemoryType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values[t]))
	for k := range s.values[t] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// AddMessage appends c to the conversation log.
func (s *Store) AddMessage(c core.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, c)
	return nil
}

// Messages returns the last limit messages in order; limit <= 0 returns all.
func (s *Store) Messages(limit int) ([]core.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(s.messages) {
		start = len(s.messages) - limit
	}
	out := make([]core.Content, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out, nil
}

// Search matches query case-insensitively against stored values and message
// text. Values are returned before messages, each group in stable order.
func (s *Store) Search(query string, limit int) ([]core.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	match := func(text string) bool { return q == "" || strings.Contains(strings.ToLower(text), q) }
	full := func(results []core.SearchResult) bool { return limit > 0 && len(results) >= limit }

	var results []core.SearchResult

	types := make([]core.MemoryType, 0, len(s.values))
	for t := range s.values {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		keys := make([]string, 0, len(s.values[t]))
		for k := range s.values[t] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if full(results) {
				return results, nil
			}
			text := fmt.Sprintf("%v", s.values[t][k])
			if !match(k) && !match(text) {
				continue
			}
			results = append(results, core.SearchResult{
				ID:       t.String() + ":" + k,
				Type:     t,
				Content:  text,
				Score:    1.0,
				Metadata: map[string]any{"key": k},
			})
		}
	}

	for i, m := range s.messages {
		if full(results) {
			break
		}
		text := m.Text()
		if text == "" || !match(text) {
			continue
		}
		results = append(results, core.SearchResult{
			ID:       fmt.Sprintf("msg_%d", i),
			Type:     core.ShortTerm,
			Content:  text,
			Score:    1.0,
			Metadata: map[string]any{"role": m.Role},
		})
	}

	return results, nil
}

// Clear removes all values of type t. Clearing ShortTerm also drops the
// conversation log.
func (s *Store) Clear(t core.MemoryType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, t)
	if t == core.ShortTerm {
		s.messages = nil
	}
	return nil
}
