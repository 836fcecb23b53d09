// ABOUTME: Outbound events of a relay and their JSON shapes
// ABOUTME: An event is a content fragment, the done marker, or an error message

package relay

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies the shape of an Event
type EventKind int

const (
	KindContent EventKind = iota
	KindDone
	KindError
)

// Event is one item of the outbound stream
type Event struct {
	Kind    EventKind
	Content string
	Error   string
}

// ContentEvent carries one content fragment
func ContentEvent(text string) Event {
	return Event{Kind: KindContent, Content: text}
}

// DoneEvent marks successful completion
func DoneEvent() Event {
	return Event{Kind: KindDone}
}

// ErrorEvent carries a user-facing error message
func ErrorEvent(msg string) Event {
	return Event{Kind: KindError, Error: msg}
}

// Terminal reports whether no event may follow this one.
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

// MarshalJSON renders {"content":...}, {"done":true} or {"error":...}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindContent:
		return json.Marshal(struct {
			Content string `json:"content"`
		}{e.Content})
	case KindDone:
		return json.Marshal(struct {
			Done bool `json:"done"`
		}{true})
	case KindError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Error})
	default:
		return nil, fmt.Errorf("unknown event kind %d", e.Kind)
	}
}

// FormatSSE renders e as a server-sent event frame: a data line and a blank line.
func FormatSSE(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// Emitter receives the events of one relay in order. An Emit error means the
// consumer is gone and the relay should stop.
type Emitter interface {
	Emit(Event) error
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(Event) error

// Emit calls f(e)
func (f EmitterFunc) Emit(e Event) error {
	return f(e)
}
