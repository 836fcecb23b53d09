// ABOUTME: Backend interface and data types for light-assistant persistence
// ABOUTME: Defines Conversation, Message, UserRecord and the per-user record Backend

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn within a conversation
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered, append-only sequence of messages with metadata.
// At most one conversation per user has IsActive set.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
	Messages  []Message `json:"messages"`
}

// UserRecord is the durable unit of storage: one per user identity.
// Conversations are ordered newest-created first.
type UserRecord struct {
	Email         string         `json:"email"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Conversations []Conversation `json:"conversations"`
}

// Backend persists opaque user records keyed by normalized identity.
// Put must publish atomically: a concurrent Get sees either the old or the new record.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend
	Close() error
}

// NormalizeKey lower-cases and trims a user identity so that lookups are case-insensitive.
func NormalizeKey(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// EncodeRecord serializes a user record with stable field names.
func EncodeRecord(rec *UserRecord) ([]byte, error) {
	if rec.Conversations == nil {
		rec.Conversations = []Conversation{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a serialized user record.
// Nil message slices are normalized to empty so callers can append freely.
func DecodeRecord(data []byte) (*UserRecord, error) {
	var rec UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	for i := range rec.Conversations {
		if rec.Conversations[i].Messages == nil {
			rec.Conversations[i].Messages = []Message{}
		}
	}
	return &rec, nil
}
