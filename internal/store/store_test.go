// ABOUTME: Tests for record encoding and behavior shared by every Backend
// ABOUTME: Runs the same conformance checks against memory, file, sqlite, and bolt

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backendFactories() map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		"file": func(t *testing.T) Backend {
			b, err := NewFileBackend(afero.NewMemMapFs(), "/data/conversations", nil)
			require.NoError(t, err)
			return b
		},
		"sqlite": func(t *testing.T) Backend {
			b, err := NewSQLiteBackend(DriverModernc, filepath.Join(t.TempDir(), "test.db"), nil)
			require.NoError(t, err)
			return b
		},
		"bolt": func(t *testing.T) Backend {
			b, err := NewBoltBackend(filepath.Join(t.TempDir(), "test.bolt"), nil)
			require.NoError(t, err)
			return b
		},
	}
}

func TestBackends_Conformance(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			t.Cleanup(func() { b.Close() })
			ctx := context.Background()

			_, err := b.Get(ctx, "nobody@example.com")
			assert.True(t, errors.Is(err, ErrNotFound), "missing key should be ErrNotFound, got %v", err)

			require.NoError(t, b.Put(ctx, "a@example.com", []byte(`{"v":1}`)))
			got, err := b.Get(ctx, "a@example.com")
			require.NoError(t, err)
			assert.Equal(t, `{"v":1}`, string(got))

			// Overwrite replaces the whole record
			require.NoError(t, b.Put(ctx, "a@example.com", []byte(`{"v":2}`)))
			got, err = b.Get(ctx, "a@example.com")
			require.NoError(t, err)
			assert.Equal(t, `{"v":2}`, string(got))

			// Keys are independent
			require.NoError(t, b.Put(ctx, "b@example.com", []byte(`{"v":3}`)))
			got, err = b.Get(ctx, "a@example.com")
			require.NoError(t, err)
			assert.Equal(t, `{"v":2}`, string(got))

			require.NoError(t, b.Delete(ctx, "a@example.com"))
			_, err = b.Get(ctx, "a@example.com")
			assert.True(t, errors.Is(err, ErrNotFound))

			// Deleting twice is fine
			assert.NoError(t, b.Delete(ctx, "a@example.com"))
		})
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &UserRecord{
		Email:     "user@example.com",
		UpdatedAt: ts,
		Conversations: []Conversation{
			{
				ID:        "c2",
				Title:     "Second",
				CreatedAt: ts.Add(time.Hour),
				UpdatedAt: ts.Add(time.Hour),
				IsActive:  true,
				Messages: []Message{
					{Role: RoleUser, Content: "hi", Timestamp: ts.Add(time.Hour)},
					{Role: RoleAssistant, Content: "hello", Timestamp: ts.Add(time.Hour + time.Second)},
				},
			},
			{
				ID:        "c1",
				Title:     "First",
				CreatedAt: ts,
				UpdatedAt: ts,
				Messages:  []Message{},
			},
		},
	}

	data, err := EncodeRecord(rec)
	require.NoError(t, err)

	got, err := DecodeRecord(data)
	require.NoError(t, err)

	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_StableFieldNames(t *testing.T) {
	rec := &UserRecord{
		Email: "user@example.com",
		Conversations: []Conversation{{
			ID:       "c1",
			Title:    "t",
			IsActive: true,
			Messages: []Message{{Role: RoleUser, Content: "x"}},
		}},
	}
	data, err := EncodeRecord(rec)
	require.NoError(t, err)

	for _, field := range []string{
		`"email"`, `"updated_at"`, `"conversations"`, `"id"`, `"title"`,
		`"created_at"`, `"is_active"`, `"messages"`, `"role"`, `"content"`, `"timestamp"`,
	} {
		assert.Contains(t, string(data), field)
	}
}

func TestDecodeRecord_Corrupt(t *testing.T) {
	_, err := DecodeRecord([]byte("{not json"))
	assert.Error(t, err)
}

func TestDecodeRecord_NilMessagesNormalized(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"email":"a","conversations":[{"id":"c1","messages":null}]}`))
	require.NoError(t, err)
	require.Len(t, rec.Conversations, 1)
	assert.NotNil(t, rec.Conversations[0].Messages)
	assert.Empty(t, rec.Conversations[0].Messages)
}

func TestEncodeRecord_EmptyCollection(t *testing.T) {
	data, err := EncodeRecord(&UserRecord{Email: "a"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conversations": []`)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeKey("  User@Example.COM "))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open("postgres", "/tmp/x", "", nil)
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	b, err := Open(KindMemory, "", "", nil)
	require.NoError(t, err)
	_, ok := b.(*MemoryBackend)
	assert.True(t, ok)
}
