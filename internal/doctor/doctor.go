// Package doctor runs local diagnostics for devdeck tunnels.
package doctor

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/treykane/devdeck/internal/appconfig"
	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/security"
	"github.com/treykane/devdeck/internal/sshclient"
	"github.com/treykane/devdeck/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Checks lets tests replace the probes that touch the host.
type Checks struct {
	SSHBinary func() error
	PortInUse func(port int) bool
}

// DefaultChecks uses the real PATH and loopback listener.
func DefaultChecks() Checks {
	return Checks{SSHBinary: sshclient.EnsureSSHBinary, PortInUse: util.LocalPortInUse}
}

// Run executes local diagnostics with the default checks.
func Run() (Report, error) {
	return RunWith(DefaultChecks())
}

// RunWith executes local diagnostics. Problems in config.yaml are reported
// as issues, one per bad tunnel, never as an error.
func RunWith(checks Checks) (Report, error) {
	var issues []Issue

	if err := checks.SSHBinary(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "ssh-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install OpenSSH client and ensure `ssh` is on PATH",
		})
	}

	cfgPath, err := appconfig.FilePath()
	if err != nil {
		return Report{}, err
	}
	tunnels, err := appconfig.ReadTunnelsUnchecked(cfgPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "config-parse",
			Target:         cfgPath,
			Message:        err.Error(),
			Recommendation: "fix the YAML syntax of config.yaml",
		})
	}

	issues = append(issues, invalidSpecIssues(tunnels)...)
	issues = append(issues, duplicateNameIssues(tunnels)...)
	issues = append(issues, duplicatePortIssues(tunnels)...)
	issues = append(issues, portInUseIssues(tunnels, checks.PortInUse)...)

	if audit, err := security.RunLocalAudit(); err == nil {
		for _, f := range audit.Findings {
			sev := SeverityLow
			if f.Severity == security.SeverityMedium {
				sev = SeverityMedium
			}
			if f.Severity == security.SeverityHigh {
				sev = SeverityHigh
			}
			issues = append(issues, Issue{
				Severity:       sev,
				Check:          "file-permissions",
				Target:         f.Target,
				Message:        f.Message,
				Recommendation: f.Recommendation,
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}, nil
}

func invalidSpecIssues(specs []model.TunnelSpec) []Issue {
	var issues []Issue
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			target := s.Name
			if strings.TrimSpace(target) == "" {
				target = fmt.Sprintf("tunnels[%d]", i)
			}
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "invalid-tunnel",
				Target:         target,
				Message:        err.Error(),
				Recommendation: "every tunnel needs name, local_port, remote_host, remote_port and target",
			})
		}
	}
	return issues
}

func duplicateNameIssues(specs []model.TunnelSpec) []Issue {
	counts := map[string]int{}
	for _, s := range specs {
		if s.Name != "" {
			counts[s.Name]++
		}
	}
	var issues []Issue
	for name, n := range counts {
		if n < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-name",
			Target:         name,
			Message:        fmt.Sprintf("tunnel name is used by %d entries", n),
			Recommendation: "tunnel names are keys; rename one of them",
		})
	}
	return issues
}

func duplicatePortIssues(specs []model.TunnelSpec) []Issue {
	seen := map[int][]string{}
	for _, s := range specs {
		if util.ValidatePort(s.LocalPort) != nil {
			continue
		}
		seen[s.LocalPort] = append(seen[s.LocalPort], s.Name)
	}
	var issues []Issue
	for port, names := range seen {
		if len(names) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "duplicate-local-port",
			Target:         fmt.Sprintf("127.0.0.1:%d", port),
			Message:        fmt.Sprintf("local port is configured by %s", strings.Join(names, ", ")),
			Recommendation: "only one of these tunnels can be connected at a time; use unique local ports",
		})
	}
	return issues
}

func portInUseIssues(specs []model.TunnelSpec, inUse func(int) bool) []Issue {
	if inUse == nil {
		return nil
	}
	checked := map[int]bool{}
	var issues []Issue
	for _, s := range specs {
		if util.ValidatePort(s.LocalPort) != nil || checked[s.LocalPort] {
			continue
		}
		checked[s.LocalPort] = true
		if !inUse(s.LocalPort) {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "local-port-in-use",
			Target:         fmt.Sprintf("127.0.0.1:%d", s.LocalPort),
			Message:        fmt.Sprintf("port for tunnel %s is already bound", s.Name),
			Recommendation: "expected if devdeck already has this tunnel up; otherwise stop the process holding the port",
		})
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
