// Package store provides durable persistence for per-user conversation collections.
//
// # Architecture
//
// The store package separates the data model from the storage medium:
//
//   - UserRecord, Conversation, Message: the persisted shapes, serialized as JSON
//     with stable field names (email, updated_at, conversations, id, title,
//     created_at, is_active, messages, role, content, timestamp).
//   - Backend: a key/value contract holding one opaque record per normalized
//     user identity.
//
// # Backends
//
//   - FileBackend: one JSON file per user on an afero filesystem. Writes go to a
//     temp file in the same directory and are published with a rename.
//   - SQLiteBackend: a single user_conversations table, one UPSERT per write.
//     Works with the pure-Go modernc driver ("sqlite") or the cgo mattn driver
//     ("sqlite3").
//   - BoltBackend: a single bbolt bucket.
//   - MemoryBackend: in-process map with failure injection, for tests.
//
// Every backend's Put replaces the whole record atomically, so a concurrent reader
// never observes a partially written collection.
//
// Delete drops a user's whole record. The conversation layer never calls it
// (deleting a conversation rewrites the record); it exists for account
// removal and for tests that reset state.
//
// Constructors take a *slog.Logger and fall back to slog.Default() when it is nil.
// Backends log initialization at Info and each published record at Debug.
//
// # Usage
//
//	b, err := store.Open(store.KindSQLite, "/var/lib/light-assistant/data.db", store.DriverModernc, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	data, err := b.Get(ctx, store.NormalizeKey(email))
//	if errors.Is(err, store.ErrNotFound) {
//	    // first visit
//	}
package store
