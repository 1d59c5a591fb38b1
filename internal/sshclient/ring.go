package sshclient

import (
	"bytes"
	"log/slog"
	"sync"
)

// lineRing is an io.Writer that splits ssh stderr into lines, logs each one
// and keeps the last max lines.
type lineRing struct {
	mu      sync.Mutex
	tunnel  string
	max     int
	partial []byte
	lines   []string
}

func newLineRing(tunnel string, max int) *lineRing {
	return &lineRing{tunnel: tunnel, max: max}
}

func (r *lineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial = append(r.partial, p...)
	for {
		i := bytes.IndexByte(r.partial, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(r.partial[:i], "\r"))
		r.partial = r.partial[i+1:]
		if line == "" {
			continue
		}
		slog.Debug("ssh stderr", "tunnel", r.tunnel, "line", line)
		r.lines = append(r.lines, line)
		if len(r.lines) > r.max {
			r.lines = r.lines[len(r.lines)-r.max:]
		}
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (r *lineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
