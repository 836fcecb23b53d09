// ABOUTME: Registry of in-flight stream tokens used for cooperative cancellation
// ABOUTME: A stop request removes the token; the relay notices at its next line boundary

package streams

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live stream tokens. It is owned by the server and safe for
// concurrent use.
type Registry struct {
	mu   sync.RWMutex
	live map[string]struct{}
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]struct{})}
}

// Begin allocates a new token and marks it live.
func (r *Registry) Begin() string {
	token := uuid.New().String()
	r.mu.Lock()
	r.live[token] = struct{}{}
	r.mu.Unlock()
	return token
}

// IsLive reports whether token is still registered.
func (r *Registry) IsLive(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.live[token]
	return ok
}

// Stop removes token. It reports whether the token was live; stopping an
// unknown or already stopped token is not an error.
func (r *Registry) Stop(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[token]
	delete(r.live, token)
	return ok
}

// Len returns the number of live streams
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
