// Package conversation manages each user's collection of conversations.
//
// # Store
//
// Store wraps a store.Backend and keeps one invariant across every mutation:
// a user with at least one conversation has exactly one active conversation.
//
//	convs := conversation.NewStore(backend, logger)
//	active := convs.GetActive(ctx, email)
//	active, _ = convs.Append(ctx, email, active.ID, store.Message{Role: store.RoleUser, Content: text})
//
// Key operations:
//
//   - GetActive: returns the active conversation, creating one on first use
//   - CreateNew: deactivates all and inserts a new conversation at the front
//   - SetActive: switches the active conversation
//   - Update / Append: replace or extend messages, refresh updated_at, derive the title
//   - Delete: removes a conversation and hands the active flag to the newest survivor
//
// # Titles
//
// New conversations are titled "New Conversation". The first time messages are
// written, the title becomes the first user message, cut to 50 characters with
// "..." appended when longer. Later updates never change it.
//
// # Durability
//
// Each operation loads the whole collection, mutates it, and saves it back under
// a per-user in-process lock. Backend errors are logged, never returned; a failed
// read looks like an empty collection. Two processes sharing one backend can still
// overwrite each other's writes.
package conversation
