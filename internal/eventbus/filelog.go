package eventbus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLog appends events as JSON lines.
type FileLog struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

func OpenFileLog(path string) (*FileLog, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	w := bufio.NewWriter(f)
	return &FileLog{file: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (l *FileLog) Append(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(e); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// MultiLog fans events out to several logs.
type MultiLog []EventLog

func (m MultiLog) Append(e Event) error {
	var firstErr error
	for _, l := range m {
		if err := l.Append(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiLog) Close() error {
	var firstErr error
	for _, l := range m {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
