package playback

import (
	"context"
	"sync"
)

// Mock is an in-memory backend for tests and dry runs.
type Mock struct {
	mu      sync.Mutex
	volume  int
	playing string
	paused  bool
	actions []string
	// Fail makes the named action return the error.
	Fail map[string]error
}

func NewMock(volume int) *Mock {
	return &Mock{volume: Clamp(volume), Fail: map[string]error{}}
}

func (m *Mock) record(action string) error {
	m.actions = append(m.actions, action)
	return m.Fail[action]
}

func (m *Mock) Play(_ context.Context, target string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(CommandPlay); err != nil {
		return Result{}, err
	}
	m.playing, m.paused = target, false
	return Result{Target: target}, nil
}

func (m *Mock) Pause(context.Context) error { return m.state(CommandPause, true) }

func (m *Mock) Resume(context.Context) error { return m.state(CommandResume, false) }

func (m *Mock) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(CommandStop); err != nil {
		return err
	}
	m.playing = ""
	return nil
}

func (m *Mock) Next(context.Context) error { return m.simple(CommandNext) }

func (m *Mock) Previous(context.Context) error { return m.simple(CommandPrevious) }

func (m *Mock) state(action string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(action); err != nil {
		return err
	}
	m.paused = paused
	return nil
}

func (m *Mock) simple(action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(action)
}

func (m *Mock) Volume(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[CommandVolume]; err != nil {
		return 0, err
	}
	return m.volume, nil
}

func (m *Mock) SetVolume(_ context.Context, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(CommandSetVolume); err != nil {
		return err
	}
	m.volume = Clamp(level)
	return nil
}

// Playing returns the current target and pause state.
func (m *Mock) Playing() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing, m.paused
}

// Actions returns every recorded action in order.
func (m *Mock) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}

// CurrentVolume reads the volume without going through Fail.
func (m *Mock) CurrentVolume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// SetFail installs or clears a failure for action.
func (m *Mock) SetFail(action string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Fail, action)
		return
	}
	m.Fail[action] = err
}
