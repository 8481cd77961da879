package testutils

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// MockHandler records the logging calls it receives and implements slog.Handler.
type MockHandler struct {
	IgnoreBelow    slog.Level
	HandleCalls    []slog.Record
	WithAttrsCalls [][]slog.Attr

	mu sync.Mutex
}

// NewMockHandler returns a new MockHandler.
// Records with a level <= ignoreBelow are not handled.
func NewMockHandler(ignoreBelow slog.Level) MockHandler {
	return MockHandler{IgnoreBelow: ignoreBelow}
}

// AssertLevels asserts that the levels of the handled records match the expected amounts.
// A nil levels map asserts that nothing was logged.
func (h *MockHandler) AssertLevels(t *testing.T, levels map[slog.Level]uint) bool {
	t.Helper()

	have := h.GetLevels()
	if levels == nil {
		return assert.Empty(t, have, "Nothing should have been logged")
	}
	return assert.Equal(t, levels, have, "Logged levels do not match")
}

// GetLevels returns the number of handled records per level.
func (h *MockHandler) GetLevels() map[slog.Level]uint {
	h.mu.Lock()
	defer h.mu.Unlock()

	levels := make(map[slog.Level]uint)
	for _, r := range h.HandleCalls {
		levels[r.Level]++
	}
	return levels
}

// Messages returns the messages of the handled records, in order.
func (h *MockHandler) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := make([]string, 0, len(h.HandleCalls))
	for _, r := range h.HandleCalls {
		msgs = append(msgs, r.Message)
	}
	return msgs
}

// Enabled implements Handler.Enabled.
func (h *MockHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level > h.IgnoreBelow
}

// Handle implements Handler.Handle.
func (h *MockHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.HandleCalls = append(h.HandleCalls, record)
	return nil
}

// WithAttrs implements Handler.WithAttrs.
func (h *MockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.WithAttrsCalls = append(h.WithAttrsCalls, attrs)
	return h
}

// WithGroup implements Handler.WithGroup.
func (h *MockHandler) WithGroup(string) slog.Handler {
	return h
}
