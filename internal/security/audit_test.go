package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/treykane/devdeck/internal/appconfig"
)

func TestRunLocalAudit_CleanDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := appconfig.Save(appconfig.Default()); err != nil {
		t.Fatal(err)
	}

	report, err := RunLocalAudit()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 0 {
		t.Fatalf("expected no findings, got %+v", report.Findings)
	}
}

func TestRunLocalAudit_FindsWorldReadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if err := appconfig.Save(appconfig.Default()); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(xdg, "devdeck", "config.yaml")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := RunLocalAudit()
	if err != nil {
		t.Fatal(err)
	}
	if !report.HasHigh() {
		t.Fatalf("expected high severity finding, got %+v", report.Findings)
	}
	if report.Findings[0].Target != path {
		t.Fatalf("unexpected first finding: %+v", report.Findings[0])
	}
}

func TestRunLocalAudit_FindsLooseSSHDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := os.MkdirAll(filepath.Join(home, ".ssh"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(filepath.Join(home, ".ssh"), 0o755); err != nil {
		t.Fatal(err)
	}

	report, err := RunLocalAudit()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) == 0 {
		t.Fatal("expected permission findings")
	}
}

func TestRedactMessage(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	msg := home + "/.ssh/id_ed25519 permission denied"
	got := RedactMessage(msg)
	if strings.Contains(got, home) {
		t.Fatalf("expected home to be redacted: %s", got)
	}
	if !strings.HasPrefix(got, "~/.ssh/[redacted]/") {
		t.Fatalf("unexpected redaction: %s", got)
	}
}

func TestUserMessage(t *testing.T) {
	if UserMessage(nil, true) != "" {
		t.Fatal("expected empty message for nil error")
	}
	if got := UserMessage(errors.New("boom"), false); got != "boom" {
		t.Fatalf("unexpected message %q", got)
	}
}
