// Package ollama is a small client for an Ollama-compatible chat backend.
//
// Chat posts a streaming request to /api/chat and hands back the raw
// newline-delimited JSON body; decoding happens line by line with ParseChunk
// so the caller controls cancellation between records. Ping checks /api/tags.
//
// Transport failures are wrapped with ErrUnreachable or ErrTimeout, and a
// non-200 answer becomes a *StatusError.
package ollama
