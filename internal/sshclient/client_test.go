package sshclient

import (
	"os/exec"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/treykane/devdeck/internal/model"
)

func TestBuildTunnelArgs(t *testing.T) {
	c := New()
	args := c.BuildTunnelArgs(model.TunnelSpec{
		Name:       "Production",
		LocalPort:  33006,
		RemoteHost: "db.internal",
		RemotePort: 3306,
		Target:     "ssm-user@i-0462fc9f5f57202e9",
	})
	want := []string{"-N", "-o", "ExitOnForwardFailure=yes", "-L", "33006:db.internal:3306", "ssm-user@i-0462fc9f5f57202e9"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args mismatch\nwant=%v\n got=%v", want, args)
	}
}

func TestConnectCommandInjectsAWSEnv(t *testing.T) {
	cmd := New().ConnectCommand(model.TunnelSpec{Target: "ssm-user@i-1", AWSProfile: "dev", AWSRegion: "us-west-2"})
	env := strings.Join(cmd.Env, "\n")
	if !strings.Contains(env, "AWS_PROFILE=dev") || !strings.Contains(env, "AWS_REGION=us-west-2") {
		t.Fatalf("expected aws env to be injected, got %v", cmd.Env)
	}
	if cmd.Args[len(cmd.Args)-1] != "ssm-user@i-1" {
		t.Fatalf("unexpected args: %v", cmd.Args)
	}
}

func startSleep(t *testing.T, seconds string) *TunnelProcess {
	t.Helper()
	p, err := start(exec.Command("sleep", seconds), "test")
	if err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	return p
}

func TestTunnelProcessKillThenWait(t *testing.T) {
	p := startSleep(t, "30")
	if p.Pid() <= 0 {
		t.Fatalf("expected pid > 0, got %d", p.Pid())
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected non-nil exit error for killed process")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after kill")
	}
	// Kill after exit must be a no-op.
	if err := p.Kill(); err != nil {
		t.Fatalf("kill after exit: %v", err)
	}
}

func TestTunnelProcessConcurrentWait(t *testing.T) {
	p := startSleep(t, "0")
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- p.Wait() }()
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Fatalf("unexpected wait error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("wait did not return")
		}
	}
}

func TestLineRingKeepsTail(t *testing.T) {
	r := newLineRing("t", 2)
	_, _ = r.Write([]byte("one\ntw"))
	_, _ = r.Write([]byte("o\r\n\nthree\n"))
	got := r.Lines()
	want := []string{"two", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}
