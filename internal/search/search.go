// Package search provides the web search collaborator behind the
// search_internet tool.
//
// Backends implement the [Provider] interface and register with the
// [Manager] by name; the tool layer only sees the manager.
package search

import (
	"context"
	"fmt"
	"strings"
)

// DefaultCount is the number of results returned when the caller does
// not ask for a specific count.
const DefaultCount = 5

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
}

// Provider is the interface search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "searxng").
	Name() string

	// Search executes a query and returns at most count results.
	Search(ctx context.Context, query string, count int) ([]Result, error)
}

// Manager holds configured providers and routes searches to the
// primary one.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a manager whose Search goes to the named provider.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// Register adds a provider.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// Search runs a query against the primary provider.
func (m *Manager) Search(ctx context.Context, query string, count int) ([]Result, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", m.primary)
	}
	return p.Search(ctx, query, count)
}

// SearchKeywords joins keywords into a single query and searches with
// the default result count. This is the shape the tool layer uses.
func (m *Manager) SearchKeywords(ctx context.Context, keywords []string) ([]Result, error) {
	query := strings.TrimSpace(strings.Join(keywords, " "))
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	return m.Search(ctx, query, DefaultCount)
}
