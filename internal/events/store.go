// Package events keeps a JSONL journal of tunnel lifecycle events.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/treykane/devdeck/internal/appconfig"
)

// Type names one kind of lifecycle event.
type Type string

const (
	TypeConnect       Type = "connect"
	TypeSpawnFailed   Type = "spawn_failed"
	TypeDisconnect    Type = "disconnect"
	TypeProcessExited Type = "process_exited"
	TypeProcessKilled Type = "process_killed"
	TypeExtend        Type = "extend"
	TypeShutdown      Type = "shutdown"
)

// Event is one tunnel lifecycle record persisted to events.jsonl.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Tunnel    string    `json:"tunnel,omitempty"`
	Type      Type      `json:"event_type"`
	LocalPort int       `json:"local_port,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Query controls event filtering and bounded reads.
type Query struct {
	Tunnel string
	Type   Type
	Since  time.Time
	Limit  int
}

// Store provides append/read access to the local event journal. Append is
// safe for concurrent use; tunnel watchers write from their own goroutines.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore opens the journal in the devdeck config directory.
func NewStore() (*Store, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(filepath.Join(dir, "events.jsonl")), nil
}

// NewStoreAt opens a journal at an explicit path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Append writes a single event as one JSON line.
func (s *Store) Append(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// Observe appends evt, logging instead of failing. It lets the store be
// handed to the tunnel supervisor as an observer.
func (s *Store) Observe(evt Event) {
	if err := s.Append(evt); err != nil {
		slog.Warn("failed to append tunnel event", "event_type", evt.Type, "tunnel", evt.Tunnel, "error", err)
	}
}

// Read returns events in append order, filtered by query, keeping only the
// newest q.Limit when a limit is set.
func (s *Store) Read(q Query) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if !matches(evt, q) {
			continue
		}
		out = append(out, evt)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func matches(evt Event, q Query) bool {
	if strings.TrimSpace(q.Tunnel) != "" && evt.Tunnel != q.Tunnel {
		return false
	}
	if q.Type != "" && evt.Type != q.Type {
		return false
	}
	if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
		return false
	}
	return true
}
