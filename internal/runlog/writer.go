// Package runlog records crawl events as JSON lines so a partial run stays
// diagnosable after the process exits.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Event struct {
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	Level   string         `json:"level,omitempty"`
	Parent  string         `json:"parent,omitempty"`
	Error   string         `json:"error,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Writer appends events to a single file. Append calls may come from
// concurrent fetch tasks, hence the mutex.
type Writer struct {
	Path string
	Now  func() time.Time

	mu   sync.Mutex
	file *os.File
}

// New opens (creating if needed) the run log at path.
func New(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create runlog dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open runlog: %w", err)
	}
	return &Writer{Path: path, Now: time.Now, file: f}, nil
}

// Append writes one event line.
func (w *Writer) Append(evt Event) error {
	if evt.TS == "" {
		now := time.Now
		if w.Now != nil {
			now = w.Now
		}
		evt.TS = now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal runlog event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(append(data, '\n'))
	return err
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
