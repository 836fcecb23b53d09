// ABOUTME: Tests for the context builder
// ABOUTME: Checks windowing bounds, ordering, and the leading system message

package prompt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/its-lightning/light-assistant/internal/store"
)

func makeMessages(n int) []store.Message {
	msgs := make([]store.Message, n)
	for i := range msgs {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		msgs[i] = store.Message{Role: role, Content: fmt.Sprintf("m%d", i)}
	}
	return msgs
}

func TestBuild_NeverExceedsWindowPlusSystem(t *testing.T) {
	b := NewBuilder("", 0)
	for _, n := range []int{0, 1, 19, 20, 21, 55, 200} {
		out := b.Build(makeMessages(n))
		assert.LessOrEqual(t, len(out), 21, "n=%d", n)
		assert.Equal(t, 1+min(n, 20), len(out), "n=%d", n)
		assert.Equal(t, "system", out[0].Role)
		assert.Equal(t, DefaultSystemPrompt, out[0].Content)
	}
}

func TestBuild_KeepsMostRecentInOrder(t *testing.T) {
	b := NewBuilder("be brief", 20)
	out := b.Build(makeMessages(25))
	require.Len(t, out, 21)

	for i, m := range out[1:] {
		assert.Equal(t, fmt.Sprintf("m%d", i+5), m.Content)
	}
	assert.Equal(t, "user", out[20].Role, "m24 was written by the user")
	assert.Equal(t, "be brief", out[0].Content)
}

func TestBuild_CustomWindow(t *testing.T) {
	b := NewBuilder("sys", 4)
	out := b.Build(makeMessages(10))
	require.Len(t, out, 5)
	assert.Equal(t, "m6", out[1].Content)
	assert.Equal(t, "m9", out[4].Content)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	msgs := makeMessages(3)
	NewBuilder("", 0).Build(msgs)
	assert.Equal(t, "m0", msgs[0].Content)
	assert.Len(t, msgs, 3)
}

func TestWindow(t *testing.T) {
	msgs := makeMessages(5)
	assert.Len(t, Window(msgs, 3), 3)
	assert.Len(t, Window(msgs, 10), 5)
	assert.Nil(t, Window(msgs, 0))
}
