package appconfig

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/treykane/devdeck/internal/model"
)

func TestLoad_CreatesDefaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UI.RefreshSeconds != 3 {
		t.Fatalf("unexpected refresh: %d", cfg.UI.RefreshSeconds)
	}
	if cfg.API.Listen != "127.0.0.1:7781" {
		t.Fatalf("unexpected listen: %s", cfg.API.Listen)
	}
	if len(cfg.Tunnels) != 0 {
		t.Fatalf("expected no tunnels, got %+v", cfg.Tunnels)
	}
	st, err := os.Stat(filepath.Join(xdg, "devdeck", "config.yaml"))
	if err != nil {
		t.Fatalf("expected config.yaml to be written: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected config permissions %#o", st.Mode().Perm())
	}
}

func TestLoad_ParsesTunnelsInOrder(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "devdeck")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := strings.Join([]string{
		"tunnels:",
		"  - name: Staging",
		"    local_port: 33007",
		"    remote_host: db.staging.internal",
		"    remote_port: 3306",
		"    target: ssm-user@i-0dc81149070588e87",
		"    aws_profile: dev",
		"    aws_region: us-west-2",
		"  - name: Production",
		"    local_port: 33006",
		"    remote_host: db.production.internal",
		"    remote_port: 3306",
		"    target: ssm-user@i-0462fc9f5f57202e9",
		"ui:",
		"  refresh_seconds: -1",
		"",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Tunnels) != 2 || cfg.Tunnels[0].Name != "Staging" || cfg.Tunnels[1].Name != "Production" {
		t.Fatalf("unexpected tunnels: %+v", cfg.Tunnels)
	}
	if cfg.Tunnels[0].AWSRegion != "us-west-2" || cfg.Tunnels[1].AWSProfile != "" {
		t.Fatalf("unexpected aws fields: %+v", cfg.Tunnels)
	}
	if cfg.UI.RefreshSeconds != 3 {
		t.Fatalf("expected normalized refresh, got %d", cfg.UI.RefreshSeconds)
	}
}

func TestLoad_RejectsDuplicateNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	SetPath(path)
	defer SetPath("")
	content := "tunnels:\n" +
		"  - {name: A, local_port: 1, remote_host: h, remote_port: 2, target: t}\n" +
		"  - {name: A, local_port: 3, remote_host: h, remote_port: 4, target: t}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoadTunnelFileAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	content := "tunnels:\n" +
		"  - {name: Staging, local_port: 1, remote_host: h, remote_port: 2, target: t}\n" +
		"  - {name: Analytics, local_port: 33008, remote_host: wh, remote_port: 5432, target: t}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	fetched, err := LoadTunnelFile(path)
	if err != nil {
		t.Fatal(err)
	}
	existing := []model.TunnelSpec{{Name: "Staging", LocalPort: 33007}}
	merged := MergeTunnels(existing, fetched)
	if len(merged) != 1 || merged[0].Name != "Analytics" {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}

func TestLoadTunnelFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("tunnels:\n  - {name: X, local_port: 70000, remote_host: h, remote_port: 2, target: t}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTunnelFile(path); err == nil {
		t.Fatal("expected port validation error")
	}
}

func TestReadTunnelsUnchecked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.yaml")
	content := "tunnels:\n" +
		"  - {name: A, local_port: 0, remote_host: h, remote_port: 2, target: t}\n" +
		"  - {name: A, local_port: 3, remote_host: h, remote_port: 4, target: t}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	specs, err := ReadTunnelsUnchecked(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected both entries unvalidated, got %+v", specs)
	}
	if _, err := ReadTunnelsUnchecked(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
