package stt

import (
	"context"
	"fmt"
	"sync"

	"github.com/loqalabs/loqa-voice/internal/audio"
)

// MockRecognizer answers from a script. With no script it describes the
// audio it was given.
type MockRecognizer struct {
	mu      sync.Mutex
	Replies []MockReply
	calls   int
	closed  bool
}

// MockReply is one scripted answer.
type MockReply struct {
	Text string
	Err  error
}

func NewMockRecognizer(replies ...MockReply) *MockRecognizer {
	return &MockRecognizer{Replies: replies}
}

func (m *MockRecognizer) Transcribe(_ context.Context, utt audio.Utterance) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.Replies) == 0 {
		return fmt.Sprintf("[transcript samples=%d]", len(utt.Samples)), nil
	}
	idx := m.calls - 1
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	r := m.Replies[idx]
	return r.Text, r.Err
}

// Calls returns how many times Transcribe ran.
func (m *MockRecognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close ran.
func (m *MockRecognizer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
