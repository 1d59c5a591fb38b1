package doctor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func okChecks() Checks {
	return Checks{
		SSHBinary: func() error { return nil },
		PortInUse: func(int) bool { return false },
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "devdeck")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func checksOf(report Report) map[string]int {
	out := map[string]int{}
	for _, issue := range report.Issues {
		out[issue.Check]++
	}
	return out
}

func TestRunCleanConfigHasNoIssues(t *testing.T) {
	writeConfig(t, strings.Join([]string{
		"tunnels:",
		"  - {name: Staging, local_port: 33007, remote_host: db.staging.internal, remote_port: 3306, target: ssm-user@i-1}",
		"  - {name: Production, local_port: 33006, remote_host: db.production.internal, remote_port: 3306, target: ssm-user@i-2}",
		"",
	}, "\n"))

	report, err := RunWith(okChecks())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", report.Issues)
	}
}

func TestRunMissingConfigIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	report, err := RunWith(okChecks())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", report.Issues)
	}
}

func TestRunReportsTunnelProblems(t *testing.T) {
	writeConfig(t, strings.Join([]string{
		"tunnels:",
		"  - {name: A, local_port: 9601, remote_host: h, remote_port: 80, target: t}",
		"  - {name: A, local_port: 9602, remote_host: h, remote_port: 80, target: t}",
		"  - {name: B, local_port: 9601, remote_host: h, remote_port: 5432, target: t}",
		"  - {name: C, local_port: 0, remote_host: h, remote_port: 80, target: t}",
		"",
	}, "\n"))

	checks := okChecks()
	checks.PortInUse = func(port int) bool { return port == 9602 }
	report, err := RunWith(checks)
	if err != nil {
		t.Fatal(err)
	}
	got := checksOf(report)
	want := map[string]int{
		"invalid-tunnel":       1,
		"duplicate-name":       1,
		"duplicate-local-port": 1,
		"local-port-in-use":    1,
	}
	for check, n := range want {
		if got[check] != n {
			t.Fatalf("expected %d %s issue(s), got %+v", n, check, report.Issues)
		}
	}
	if report.Issues[0].Severity != SeverityHigh {
		t.Fatalf("expected high severity first, got %+v", report.Issues[0])
	}
}

func TestRunReportsMissingSSHAndLoosePermissions(t *testing.T) {
	path := writeConfig(t, "tunnels: []\n")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	checks := okChecks()
	checks.SSHBinary = func() error { return errors.New("ssh binary not found in PATH") }
	report, err := RunWith(checks)
	if err != nil {
		t.Fatal(err)
	}
	got := checksOf(report)
	if got["ssh-binary"] != 1 || got["file-permissions"] != 1 {
		t.Fatalf("unexpected issues: %+v", report.Issues)
	}
}

func TestRunReportsUnparseableConfig(t *testing.T) {
	writeConfig(t, "tunnels: [\n")

	report, err := RunWith(okChecks())
	if err != nil {
		t.Fatal(err)
	}
	if checksOf(report)["config-parse"] != 1 {
		t.Fatalf("expected config-parse issue, got %+v", report.Issues)
	}
}

func TestRunJSONShape(t *testing.T) {
	writeConfig(t, "tunnels: []\n")

	report, err := RunWith(okChecks())
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["issues"]; !ok {
		t.Fatalf("expected issues key in json output: %s", string(b))
	}
}
