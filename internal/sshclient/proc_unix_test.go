//go:build unix

package sshclient

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
)

// waitAfterKill kills p and returns how long Wait took to come back.
func waitAfterKill(t *testing.T, p *TunnelProcess) time.Duration {
	t.Helper()
	time.Sleep(300 * time.Millisecond)
	start := time.Now()
	if err := p.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("wait did not return after kill")
	}
	return time.Since(start)
}

// A ProxyCommand-like child shares ssh's stderr pipe; killing the group
// must take it down too so Wait returns at once.
func TestKillReachesChildProcesses(t *testing.T) {
	p, err := start(exec.Command("sh", "-c", "sleep 5 & exec sleep 30"), "test")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}
	if took := waitAfterKill(t, p); took > time.Second {
		t.Fatalf("wait blocked %s after kill", took)
	}
}

// A child that left the process group survives the kill, but Wait still
// returns once the pipe wait delay runs out.
func TestWaitDoesNotHangOnEscapedChild(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	p, err := start(exec.Command("sh", "-c", "setsid sleep 5 & exec sleep 30"), "test")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}
	if took := waitAfterKill(t, p); took > 4*time.Second {
		t.Fatalf("wait blocked %s after kill", took)
	}
}

func TestRunInPTYStopsWhenContextEnds(t *testing.T) {
	master, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	_ = master.Close()
	_ = tty.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	begin := time.Now()
	err = runInPTY(ctx, exec.Command("sleep", "30"), strings.NewReader(""), io.Discard)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if took := time.Since(begin); took > 5*time.Second {
		t.Fatalf("session outlived its context by %s", took)
	}
}
