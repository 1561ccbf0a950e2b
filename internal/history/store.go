// Package history maintains bounded per-conversation chat history with
// overflow archival, inactivity archiving, archive expiry, and persisted
// recovery across restarts.
package history

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qunqin/chatbridge/internal/state"
)

const (
	// SnapshotKey is the persistence key for the active history snapshot.
	SnapshotKey = "chat_history"

	// ArchiveKeyPrefix prefixes per-conversation archive blobs.
	ArchiveKeyPrefix = "archived_history_"
)

// Message roles and chat types.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	TypeChat      = "chat"
	TypeGroupChat = "group_chat"
)

// Message is one recorded chat message. Messages are immutable once
// recorded; archival only relocates them.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username,omitempty"`
	Type      string    `json:"type,omitempty"`
}

// snapshot is the JSON blob stored under SnapshotKey. SavedAt gates
// staleness on reload: a snapshot older than the history timeout would
// have been archived by the sweep anyway, so it is not restored.
type snapshot struct {
	SavedAt         time.Time            `json:"saved_at"`
	Histories       map[string][]Message `json:"histories"`
	LastInteraction map[string]time.Time `json:"last_interaction"`
}

// archiveBlob is the JSON blob stored under ArchiveKeyPrefix + id.
type archiveBlob struct {
	Messages []Message `json:"messages"`
}

// Store owns all conversation history state. One mutex guards the whole
// store; message rates are human-scale, so contention is not a concern,
// and the sweeps get the same exclusion as appends for free.
type Store struct {
	mu              sync.Mutex
	histories       map[string][]Message
	lastInteraction map[string]time.Time

	store      state.Store
	maxLen     int
	timeout    time.Duration
	archiveTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewStore builds a history store backed by st and restores the
// persisted snapshot if it is fresh enough. maxLen bounds the active
// window per conversation, timeout is the inactivity horizon, and
// archiveTTL is how long archived messages survive.
func NewStore(st state.Store, maxLen int, timeout, archiveTTL time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		histories:       make(map[string][]Message),
		lastInteraction: make(map[string]time.Time),
		store:           st,
		maxLen:          maxLen,
		timeout:         timeout,
		archiveTTL:      archiveTTL,
		logger:          logger.With("component", "history"),
		now:             time.Now,
	}

	s.restore()
	return s
}

func (s *Store) restore() {
	if s.store == nil {
		return
	}

	var saved snapshot
	ok, err := s.store.LoadState(SnapshotKey, &saved)
	if err != nil {
		s.logger.Error("failed to load history snapshot, starting fresh", "error", err)
		return
	}
	if !ok {
		return
	}
	if s.timeout > 0 && s.now().Sub(saved.SavedAt) >= s.timeout {
		s.logger.Info("discarding stale history snapshot", "saved_at", saved.SavedAt)
		return
	}

	if saved.Histories != nil {
		s.histories = saved.Histories
	}
	if saved.LastInteraction != nil {
		s.lastInteraction = saved.LastInteraction
	}
	s.logger.Info("restored chat history", "conversations", len(s.histories))
}

// persistLocked snapshots the active maps. Callers hold s.mu.
// Persistence failures are logged, never propagated: in-memory state is
// the source of truth for the running process.
func (s *Store) persistLocked() {
	if s.store == nil {
		return
	}
	err := s.store.SaveState(SnapshotKey, snapshot{
		SavedAt:         s.now(),
		Histories:       s.histories,
		LastInteraction: s.lastInteraction,
	})
	if err != nil {
		s.logger.Error("failed to persist history snapshot", "error", err)
	}
}

func archiveKey(conversationID string) string {
	return ArchiveKeyPrefix + conversationID
}

// loadArchiveLocked reads a conversation's archive. Missing or corrupt
// blobs read as empty.
func (s *Store) loadArchiveLocked(conversationID string) []Message {
	if s.store == nil {
		return nil
	}
	var blob archiveBlob
	ok, err := s.store.LoadState(archiveKey(conversationID), &blob)
	if err != nil {
		s.logger.Error("failed to load archive", "conversation", conversationID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return blob.Messages
}

func (s *Store) saveArchiveLocked(conversationID string, msgs []Message) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveState(archiveKey(conversationID), archiveBlob{Messages: msgs}); err != nil {
		s.logger.Error("failed to save archive", "conversation", conversationID, "error", err)
	}
}

// Append records a message for a conversation. When the active window
// overflows, the oldest message moves to the archive. State is persisted
// on every append; durability wins over write amplification at chat
// message rates.
func (s *Store) Append(conversationID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	hist := append(s.histories[conversationID], msg)
	if s.maxLen > 0 && len(hist) > s.maxLen {
		evicted := hist[0]
		hist = hist[1:]
		archived := append(s.loadArchiveLocked(conversationID), evicted)
		s.saveArchiveLocked(conversationID, archived)
	}
	s.histories[conversationID] = hist
	s.lastInteraction[conversationID] = s.now()

	s.persistLocked()
}

// Get returns a copy of a conversation's active history.
func (s *Store) Get(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.histories[conversationID]
	out := make([]Message, len(hist))
	copy(out, hist)
	return out
}

// Combined returns archived followed by active history, in chronological
// order, for context building.
func (s *Store) Combined(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	archived := s.loadArchiveLocked(conversationID)
	active := s.histories[conversationID]
	out := make([]Message, 0, len(archived)+len(active))
	out = append(out, archived...)
	out = append(out, active...)
	return out
}

// Clear drops a conversation's active history. The archive is untouched.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.histories, conversationID)
	delete(s.lastInteraction, conversationID)
	s.persistLocked()
}

// SweepInactive archives the full active history of every conversation
// idle past the timeout. Returns the number of conversations archived.
// now is explicit so sweeps are testable without wall-clock waits.
func (s *Store) SweepInactive(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	archivedCount := 0
	for id, last := range s.lastInteraction {
		if now.Sub(last) < s.timeout {
			continue
		}
		if hist := s.histories[id]; len(hist) > 0 {
			s.saveArchiveLocked(id, append(s.loadArchiveLocked(id), hist...))
			s.logger.Info("archived inactive conversation", "conversation", id, "messages", len(hist))
		}
		delete(s.histories, id)
		delete(s.lastInteraction, id)
		archivedCount++
	}

	if archivedCount > 0 {
		s.persistLocked()
	}
	return archivedCount
}

// SweepArchives drops archived messages older than the archive TTL.
// Archives left empty are deleted outright. Returns the number of
// messages purged.
func (s *Store) SweepArchives(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return 0
	}

	keys, err := s.store.Keys(ArchiveKeyPrefix)
	if err != nil {
		s.logger.Error("failed to list archives", "error", err)
		return 0
	}

	purged := 0
	for _, key := range keys {
		id := strings.TrimPrefix(key, ArchiveKeyPrefix)
		msgs := s.loadArchiveLocked(id)

		kept := msgs[:0:0]
		for _, m := range msgs {
			if now.Sub(m.Timestamp) < s.archiveTTL {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(msgs) {
			continue
		}
		purged += len(msgs) - len(kept)

		if len(kept) == 0 {
			if err := s.store.DeleteState(key); err != nil {
				s.logger.Error("failed to delete empty archive", "conversation", id, "error", err)
			} else {
				s.logger.Info("deleted empty archive", "conversation", id)
			}
			continue
		}
		s.saveArchiveLocked(id, kept)
	}
	return purged
}

// Stats returns a short description of the store's contents, for logging.
func (s *Store) Stats() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, h := range s.histories {
		total += len(h)
	}
	return fmt.Sprintf("%d conversations, %d active messages", len(s.histories), total)
}
