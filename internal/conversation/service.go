// ABOUTME: Store is the per-user conversation layer over a persistence Backend
// ABOUTME: Enforces the single-active-conversation invariant and the title rule on every mutation

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/its-lightning/light-assistant/internal/store"
)

const (
	// DefaultTitle is the placeholder title of a conversation with no messages
	DefaultTitle = "New Conversation"

	// TitleMaxRunes is the number of characters kept when deriving a title
	TitleMaxRunes = 50

	saveTimeout = 5 * time.Second
)

// Summary is the listing view of a conversation
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsActive     bool      `json:"is_active"`
	MessageCount int       `json:"message_count"`
}

// Store manages each user's conversation collection.
//
// Every operation is a whole-collection load, mutate, save under a per-user lock.
// Backend failures are logged and swallowed: reads degrade to an empty collection
// and writes are best effort. Callers must not assume a mutation was persisted.
type Store struct {
	backend store.Backend
	logger  *slog.Logger
	locks   *keyedMutex

	now   func() time.Time
	newID func() string
}

// NewStore creates a conversation Store over backend.
func NewStore(backend store.Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger.With("component", "conversation"),
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// Load returns the user's conversations, newest first. A missing or unreadable
// record yields an empty collection.
func (s *Store) Load(ctx context.Context, user string) []store.Conversation {
	key := store.NormalizeKey(user)
	unlock := s.locks.Lock(key)
	defer unlock()
	return s.load(ctx, key)
}

// Save replaces the user's whole collection.
func (s *Store) Save(ctx context.Context, user string, conversations []store.Conversation) {
	key := store.NormalizeKey(user)
	unlock := s.locks.Lock(key)
	defer unlock()
	s.save(ctx, key, conversations)
}

// GetActive returns the active conversation, creating and persisting one if the
// user has none. If conversations exist but none is flagged, the newest is activated.
func (s *Store) GetActive(ctx context.Context, user string) store.Conversation {
	var active store.Conversation
	s.mutate(ctx, user, func(convs []store.Conversation) ([]store.Conversation, bool) {
		if i := activeIndex(convs); i >= 0 {
			active = convs[i]
			return convs, false
		}
		if len(convs) > 0 {
			convs[0].IsActive = true
			active = convs[0]
			s.logger.Warn("no active conversation flagged, activating newest",
				"user", store.NormalizeKey(user),
				"conversation_id", active.ID)
			return convs, true
		}
		active = s.newConversation()
		return []store.Conversation{active}, true
	})
	return active
}

// CreateNew deactivates every existing conversation and inserts a new active one
// at the front of the collection.
func (s *Store) CreateNew(ctx context.Context, user string) store.Conversation {
	var created store.Conversation
	s.mutate(ctx, user, func(convs []store.Conversation) ([]store.Conversation, bool) {
		for i := range convs {
			convs[i].IsActive = false
		}
		created = s.newConversation()
		return append([]store.Conversation{created}, convs...), true
	})
	s.logger.Debug("conversation created",
		"user", store.NormalizeKey(user),
		"conversation_id", created.ID)
	return created
}

// SetActive activates the conversation with the given id and deactivates the rest.
// Returns false, leaving state untouched, if id is unknown.
func (s *Store) SetActive(ctx context.Context, user, id string) bool {
	found := false
	s.mutate(ctx, user, func(convs []store.Conversation) ([]store.Conversation, bool) {
		if indexOf(convs, id) < 0 {
			return convs, false
		}
		found = true
		for i := range convs {
			convs[i].IsActive = convs[i].ID == id
		}
		return convs, true
	})
	return found
}

// Update replaces the messages of the named conversation, refreshes its
// updated_at, and derives its title if still at the placeholder.
// An unknown id is a no-op but the record is still written back.
func (s *Store) Update(ctx context.Context, user, id string, messages []store.Message) {
	s.mutate(ctx, user, func(convs []store.Conversation) ([]store.Conversation, bool) {
		i := indexOf(convs, id)
		if i < 0 {
			s.logger.Warn("update of unknown conversation",
				"user", store.NormalizeKey(user),
				"conversation_id", id)
			return convs, true
		}
		s.setMessages(&convs[i], append([]store.Message(nil), messages...))
		return convs, true
	})
}

// Append adds one message to the named conversation and returns the updated
// conversation. Returns false if id is unknown.
func (s *Store) Append(ctx context.Context, user, id string, msg store.Message) (store.Conversation, bool) {
	var updated store.Conversation
	found := false
	s.mutate(ctx, user, func(convs []store.Conversation) ([]store.Conversation, bool) {
		i := indexOf(convs, id)
		if i < 0 {
			return convs, false
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = s.now()
		}
		s.setMessages(&convs[i], append(convs[i].Messages, msg))
		updated = convs[i]
		found = true
		return convs, true
	})
	return updated, found
}

// Delete removes the named conversation. If it was active and others remain,
// the newest remaining conversation becomes active. Deleting an unknown id
// counts as success.
func (s *Store) Delete(ctx context.Context, user, id string) bool {
	s.mutate(ctx, user, func(convs []store.Conversation) ([]store.Conversation, bool) {
		i := indexOf(convs, id)
		if i < 0 {
			return convs, false
		}
		wasActive := convs[i].IsActive
		convs = append(convs[:i], convs[i+1:]...)
		if wasActive && len(convs) > 0 {
			convs[0].IsActive = true
		}
		return convs, true
	})
	return true
}

// List returns summaries of the user's conversations, newest first.
func (s *Store) List(ctx context.Context, user string) []Summary {
	convs := s.Load(ctx, user)
	out := make([]Summary, 0, len(convs))
	for _, c := range convs {
		out = append(out, Summary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			IsActive:     c.IsActive,
			MessageCount: len(c.Messages),
		})
	}
	return out
}

// Get returns the named conversation.
func (s *Store) Get(ctx context.Context, user, id string) (store.Conversation, bool) {
	convs := s.Load(ctx, user)
	if i := indexOf(convs, id); i >= 0 {
		return convs[i], true
	}
	return store.Conversation{}, false
}

// mutate runs fn over the user's collection under the user's lock and saves the
// result when fn reports a change.
func (s *Store) mutate(ctx context.Context, user string, fn func([]store.Conversation) ([]store.Conversation, bool)) {
	key := store.NormalizeKey(user)
	unlock := s.locks.Lock(key)
	defer unlock()

	convs, changed := fn(s.load(ctx, key))
	if changed {
		s.save(ctx, key, convs)
	}
}

func (s *Store) load(ctx context.Context, key string) []store.Conversation {
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return []store.Conversation{}
	}
	if err != nil {
		s.logger.Warn("failed to load conversations", "user", key, "error", err)
		return []store.Conversation{}
	}
	rec, err := store.DecodeRecord(data)
	if err != nil {
		s.logger.Warn("corrupt conversation record, treating as empty", "user", key, "error", err)
		return []store.Conversation{}
	}
	return rec.Conversations
}

// save writes with its own timeout so a commit survives a cancelled request.
func (s *Store) save(ctx context.Context, key string, convs []store.Conversation) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	data, err := store.EncodeRecord(&store.UserRecord{
		Email:         key,
		UpdatedAt:     s.now(),
		Conversations: convs,
	})
	if err != nil {
		s.logger.Error("failed to encode conversations", "user", key, "error", err)
		return
	}
	if err := s.backend.Put(saveCtx, key, data); err != nil {
		s.logger.Error("failed to save conversations", "user", key, "error", err)
		return
	}
	s.logger.Debug("conversations saved", "user", key, "count", len(convs))
}

func (s *Store) newConversation() store.Conversation {
	now := s.now()
	return store.Conversation{
		ID:        s.newID(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
		Messages:  []store.Message{},
	}
}

func (s *Store) setMessages(c *store.Conversation, messages []store.Message) {
	if messages == nil {
		messages = []store.Message{}
	}
	c.Messages = messages
	c.UpdatedAt = s.now()
	if c.Title == DefaultTitle {
		if title, ok := deriveTitle(messages); ok {
			c.Title = title
		}
	}
}

// deriveTitle builds a title from the first user message.
func deriveTitle(messages []store.Message) (string, bool) {
	for _, m := range messages {
		if m.Role != store.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			return "", false
		}
		if utf8.RuneCountInString(text) <= TitleMaxRunes {
			return text, true
		}
		runes := []rune(text)
		return string(runes[:TitleMaxRunes]) + "...", true
	}
	return "", false
}

func activeIndex(convs []store.Conversation) int {
	for i := range convs {
		if convs[i].IsActive {
			return i
		}
	}
	return -1
}

func indexOf(convs []store.Conversation, id string) int {
	for i := range convs {
		if convs[i].ID == id {
			return i
		}
	}
	return -1
}
