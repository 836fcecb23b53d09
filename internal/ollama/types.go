// ABOUTME: Wire types for the streaming chat API of an Ollama-compatible backend
// ABOUTME: Chunks are decoded defensively since every field is optional

package ollama

import (
	"bytes"
	"encoding/json"
)

// Message is one role/content pair sent to the backend
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the sampling options of a chat request
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ChatRequest is the body posted to /api/chat
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

// ChunkMessage is the partial assistant message carried by a chunk
type ChunkMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatChunk is one newline-delimited record of a streaming response.
// Message and Error are absent on most records; Done is set on the last one.
type ChatChunk struct {
	Model   string        `json:"model,omitempty"`
	Message *ChunkMessage `json:"message,omitempty"`
	Done    bool          `json:"done,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Content returns the content fragment, or "" when the chunk has none.
func (c *ChatChunk) Content() string {
	if c.Message == nil {
		return ""
	}
	return c.Message.Content
}

// ParseChunk decodes one line of a streaming body. Blank lines report ok=false
// with a nil error so callers can skip them quietly.
func ParseChunk(line []byte) (chunk ChatChunk, ok bool, err error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return ChatChunk{}, false, nil
	}
	if err := json.Unmarshal(line, &chunk); err != nil {
		return ChatChunk{}, false, err
	}
	return chunk, true, nil
}
