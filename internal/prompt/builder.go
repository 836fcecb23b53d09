// ABOUTME: Builds the backend message list from a conversation
// ABOUTME: One system message followed by the most recent messages, timestamps dropped

package prompt

import (
	"github.com/its-lightning/light-assistant/internal/ollama"
	"github.com/its-lightning/light-assistant/internal/store"
)

// DefaultWindow is how many conversation messages are sent per turn
const DefaultWindow = 20

// DefaultSystemPrompt sets the assistant persona and keeps answers short
const DefaultSystemPrompt = "You are Light, a helpful personal assistant. " +
	"Answer clearly and concisely. Keep replies brief unless the user asks for detail, " +
	"and say so when you are unsure instead of guessing."

// Builder produces backend-ready message lists
type Builder struct {
	SystemPrompt string
	Window       int
}

// NewBuilder returns a Builder, falling back to the defaults for empty values.
func NewBuilder(systemPrompt string, window int) *Builder {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Builder{SystemPrompt: systemPrompt, Window: window}
}

// Build returns the system message followed by at most Window of the latest
// messages, in chronological order.
func (b *Builder) Build(messages []store.Message) []ollama.Message {
	out := make([]ollama.Message, 0, 1+min(len(messages), b.Window))
	out = append(out, ollama.Message{Role: "system", Content: b.SystemPrompt})
	for _, m := range Window(messages, b.Window) {
		out = append(out, ollama.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Window returns the last n messages. The result shares storage with messages.
func Window(messages []store.Message, n int) []store.Message {
	if n <= 0 {
		return nil
	}
	if len(messages) > n {
		return messages[len(messages)-n:]
	}
	return messages
}
