// ABOUTME: Relay drives one streaming backend completion and forwards it as events
// ABOUTME: Handles cooperative cancellation, malformed lines, idle timeouts, and the final commit

package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/its-lightning/light-assistant/internal/ollama"
	"github.com/its-lightning/light-assistant/internal/store"
)

const (
	// DefaultMaxTokens caps generated tokens on the conversational path
	DefaultMaxTokens = 256

	// DefaultTimeout bounds how long the relay waits for the next backend line
	DefaultTimeout = 120 * time.Second

	maxLineSize = 1 << 20
)

// User-facing error messages
const (
	MsgUnreachable = "Cannot connect to the language model backend. Is it running?"
	MsgTimeout     = "Request timed out. The model might be too slow."
	MsgIncomplete  = "The language model backend closed the stream before completing."
)

// Outcome is the terminal state of a relay
type Outcome int

const (
	Completed Outcome = iota
	Cancelled
	BackendError
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case BackendError:
		return "backend_error"
	case TransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ChatBackend opens a streaming completion
type ChatBackend interface {
	Chat(ctx context.Context, req *ollama.ChatRequest) (io.ReadCloser, error)
}

// Registry is the liveness table consulted between lines
type Registry interface {
	IsLive(token string) bool
	Stop(token string) bool
}

// Committer persists a conversation's messages
type Committer interface {
	Update(ctx context.Context, user, id string, messages []store.Message)
}

// Options configure the backend request and the idle ceiling
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Request is the input to one relay run
type Request struct {
	// Token must already be live in the registry
	Token string
	User  string

	// Conversation is the target of the commit, including the triggering user message
	Conversation store.Conversation

	// Messages is the backend-ready context
	Messages []ollama.Message
}

// Relay runs streaming completions
type Relay struct {
	backend   ChatBackend
	registry  Registry
	committer Committer
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Relay. Zero MaxTokens and Timeout fall back to the package
// defaults. Temperature is passed through as given, so zero means greedy decoding.
func New(backend ChatBackend, registry Registry, committer Committer, opts Options, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Relay{
		backend:   backend,
		registry:  registry,
		committer: committer,
		opts:      opts,
		logger:    logger.With("component", "relay"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one completion, emitting content events in backend order and
// at most one terminal event. The stream token is released on every path.
// Run never panics past its boundary.
func (r *Relay) Run(ctx context.Context, req *Request, emit Emitter) (outcome Outcome) {
	logger := r.logger.With(
		"stream_id", req.Token,
		"user", req.User,
		"conversation_id", req.Conversation.ID)

	defer func() {
		r.registry.Stop(req.Token)
		logger.Info("stream finished", "outcome", outcome.String())
	}()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("relay panic", "panic", p)
			r.terminal(logger, emit, ErrorEvent(fmt.Sprintf("Unexpected error: %v", p)))
			outcome = TransportError
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(r.opts.Timeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	body, err := r.backend.Chat(ctx, &ollama.ChatRequest{
		Model:    r.opts.Model,
		Messages: req.Messages,
		Stream:   true,
		Options: ollama.Options{
			Temperature: r.opts.Temperature,
			NumPredict:  r.opts.MaxTokens,
		},
	})
	if err != nil {
		return r.requestFailed(ctx, logger, emit, err, stalled.Load())
	}
	defer body.Close()

	var acc strings.Builder
	chunks := 0

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		watchdog.Reset(r.opts.Timeout)

		if !r.registry.IsLive(req.Token) {
			logger.Info("stream stopped by client", "chunks", chunks)
			r.commit(ctx, logger, req, acc.String())
			return Cancelled
		}

		chunk, ok, err := ollama.ParseChunk(scanner.Bytes())
		if err != nil {
			logger.Debug("skipping malformed backend line", "error", err)
			continue
		}
		if !ok {
			continue
		}
		chunks++

		if chunk.Error != "" {
			logger.Error("backend reported error", "error", chunk.Error)
			r.terminal(logger, emit, ErrorEvent(chunk.Error))
			return BackendError
		}

		if text := chunk.Content(); text != "" {
			acc.WriteString(text)
			if err := emit.Emit(ContentEvent(text)); err != nil {
				logger.Info("client went away", "error", err)
				r.commit(ctx, logger, req, acc.String())
				return Cancelled
			}
		}

		if chunk.Done {
			logger.Debug("backend signalled done", "chunks", chunks)
			r.commit(ctx, logger, req, acc.String())
			r.terminal(logger, emit, DoneEvent())
			return Completed
		}
	}

	err = scanner.Err()
	switch {
	case stalled.Load():
		logger.Error("backend stalled", "timeout", r.opts.Timeout)
		r.terminal(logger, emit, ErrorEvent(MsgTimeout))
		return TransportError
	case err != nil && ctx.Err() != nil:
		logger.Info("request context ended mid-stream", "error", err)
		r.commit(ctx, logger, req, acc.String())
		return Cancelled
	case err != nil:
		logger.Error("stream read failed", "error", err)
		r.terminal(logger, emit, ErrorEvent(fmt.Sprintf("Unexpected error: %v", err)))
		return TransportError
	default:
		logger.Error("backend stream ended without done", "chunks", chunks)
		r.terminal(logger, emit, ErrorEvent(MsgIncomplete))
		return TransportError
	}
}

// requestFailed converts a failed backend call into a terminal event.
func (r *Relay) requestFailed(ctx context.Context, logger *slog.Logger, emit Emitter, err error, stalled bool) Outcome {
	var statusErr *ollama.StatusError
	switch {
	case errors.As(err, &statusErr):
		logger.Error("backend rejected request", "status", statusErr.StatusCode)
		r.terminal(logger, emit, ErrorEvent(statusErr.Error()))
		return BackendError
	case stalled || errors.Is(err, ollama.ErrTimeout):
		logger.Error("backend timed out", "error", err)
		r.terminal(logger, emit, ErrorEvent(MsgTimeout))
		return TransportError
	case errors.Is(err, ollama.ErrUnreachable):
		logger.Error("backend unreachable", "error", err)
		r.terminal(logger, emit, ErrorEvent(MsgUnreachable))
		return TransportError
	case ctx.Err() != nil:
		logger.Info("request context ended before the backend answered", "error", err)
		return Cancelled
	default:
		logger.Error("backend request failed", "error", err)
		r.terminal(logger, emit, ErrorEvent(fmt.Sprintf("Unexpected error: %v", err)))
		return TransportError
	}
}

// commit appends the assistant reply and persists the conversation. Empty
// replies are not committed. The write is detached from ctx so it survives
// a disconnected client.
func (r *Relay) commit(ctx context.Context, logger *slog.Logger, req *Request, text string) {
	if text == "" {
		return
	}
	messages := make([]store.Message, 0, len(req.Conversation.Messages)+1)
	messages = append(messages, req.Conversation.Messages...)
	messages = append(messages, store.Message{
		Role:      store.RoleAssistant,
		Content:   text,
		Timestamp: r.now(),
	})
	r.committer.Update(context.WithoutCancel(ctx), req.User, req.Conversation.ID, messages)
	logger.Debug("assistant reply committed", "length", len(text))
}

func (r *Relay) terminal(logger *slog.Logger, emit Emitter, e Event) {
	if err := emit.Emit(e); err != nil {
		logger.Debug("terminal event not delivered", "error", err)
	}
}
