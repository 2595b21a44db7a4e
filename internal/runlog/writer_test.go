package runlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	w, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	if err := w.Append(Event{Type: "level_start", Level: "provinsi", Payload: map[string]any{"tasks": 1}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(Event{Type: "task_failed", Level: "kabupaten", Parent: "11", Error: "HTTP 502"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		events = append(events, evt)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].TS != "2025-06-01T12:00:00Z" {
		t.Fatalf("timestamp not stamped: %+v", events[0])
	}
	if events[1].Parent != "11" || events[1].Error != "HTTP 502" {
		t.Fatalf("failure event: %+v", events[1])
	}
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	w, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Append(Event{Type: "task_failed", Error: "x"})
		}()
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 32 {
		t.Fatalf("expected 32 intact lines, got %d", lines)
	}
}
