// Package prompts implements the system prompt selector. A conversation
// can switch its persona by starting a message with the name of a loaded
// prompt ("techwriter explain X") or reset it with "default". Assignments
// persist across restarts through the state store.
package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/qunqin/chatbridge/internal/state"
)

// StateKey is the persistence key for prompt assignments.
const StateKey = "prompt_state"

// DefaultName is the reserved prompt name that clears an assignment.
const DefaultName = "default"

// Resolution is the outcome of resolving a message against the prompt set.
type Resolution struct {
	// SystemPrompt is the active prompt body, date-prefixed, ready to be
	// sent as the system message content.
	SystemPrompt string

	// Content is the message text with any switch command stripped.
	// Unchanged when IsSwitch is false.
	Content string

	// IsSwitch reports whether the message began with a prompt switch
	// command. When true and Content is empty, the caller must reply
	// with the switch acknowledgement and skip the LLM entirely.
	IsSwitch bool
}

// persistedState is the JSON blob stored under StateKey. SavedAt gates
// staleness on reload, mirroring the chat history snapshot.
type persistedState struct {
	SavedAt     time.Time         `json:"saved_at"`
	Assignments map[string]string `json:"assignments"`
}

// Manager owns the loaded prompt set and per-conversation assignments.
type Manager struct {
	mu          sync.Mutex
	prompts     map[string]string
	assignments map[string]string

	store      state.Store
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewManager loads the prompt set from dir (every *.txt file, name =
// basename) and restores persisted assignments no older than staleAfter.
// A missing or unreadable prompt directory yields an empty set and is
// logged, never fatal.
func NewManager(dir string, store state.Store, staleAfter time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		prompts:     make(map[string]string),
		assignments: make(map[string]string),
		store:       store,
		staleAfter:  staleAfter,
		logger:      logger.With("component", "prompts"),
		now:         time.Now,
	}

	m.loadPrompts(dir)
	m.loadAssignments()
	return m
}

func (m *Manager) loadPrompts(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		m.logger.Error("failed to load system prompts", "dir", dir, "error", err)
		return
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			m.logger.Error("failed to read prompt file", "file", name, "error", err)
			continue
		}
		m.prompts[strings.TrimSuffix(name, ".txt")] = string(content)
	}

	m.logger.Info("loaded system prompts", "count", len(m.prompts))
}

func (m *Manager) loadAssignments() {
	if m.store == nil {
		return
	}

	var saved persistedState
	ok, err := m.store.LoadState(StateKey, &saved)
	if err != nil {
		m.logger.Error("failed to load prompt state, starting fresh", "error", err)
		return
	}
	if !ok {
		return
	}
	if m.staleAfter > 0 && m.now().Sub(saved.SavedAt) >= m.staleAfter {
		m.logger.Info("discarding stale prompt state", "saved_at", saved.SavedAt)
		return
	}
	if saved.Assignments != nil {
		m.assignments = saved.Assignments
	}
	m.logger.Info("restored prompt assignments", "count", len(m.assignments))
}

// persistLocked writes the assignment map. Callers hold m.mu.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	err := m.store.SaveState(StateKey, persistedState{
		SavedAt:     m.now(),
		Assignments: m.assignments,
	})
	if err != nil {
		m.logger.Error("failed to persist prompt state", "error", err)
	}
}

// Resolve determines the active system prompt for a conversation and
// strips any leading switch command from text.
func (m *Manager) Resolve(conversationID, text string) Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()

	first, rest := splitFirstWord(text)

	if strings.EqualFold(first, DefaultName) {
		if _, had := m.assignments[conversationID]; had {
			delete(m.assignments, conversationID)
			m.persistLocked()
		}
		return Resolution{
			SystemPrompt: m.withDate(m.prompts[DefaultName]),
			Content:      rest,
			IsSwitch:     true,
		}
	}

	if body, ok := m.prompts[first]; ok && first != "" {
		m.assignments[conversationID] = first
		m.persistLocked()
		return Resolution{
			SystemPrompt: m.withDate(body),
			Content:      rest,
			IsSwitch:     true,
		}
	}

	if name, ok := m.assignments[conversationID]; ok {
		if body, loaded := m.prompts[name]; loaded {
			return Resolution{SystemPrompt: m.withDate(body), Content: text}
		}
	}
	return Resolution{SystemPrompt: m.withDate(m.prompts[DefaultName]), Content: text}
}

// Assigned returns the prompt name assigned to a conversation, or ""
// when it uses the default.
func (m *Manager) Assigned(conversationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignments[conversationID]
}

// Names returns the loaded prompt names.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.prompts))
	for name := range m.prompts {
		names = append(names, name)
	}
	return names
}

// withDate prefixes the prompt body with the current calendar date, so
// the model knows what day it is.
func (m *Manager) withDate(body string) string {
	return fmt.Sprintf("今天是 %s，\n%s", m.now().Format("2006/1/2"), body)
}

// splitFirstWord returns the first whitespace-delimited word of text and
// the trimmed remainder.
func splitFirstWord(text string) (string, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ""
	}
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		return trimmed[:i], strings.TrimSpace(trimmed[i:])
	}
	return trimmed, ""
}
