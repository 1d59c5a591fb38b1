package model

import (
	"fmt"
	"strings"

	"github.com/treykane/devdeck/internal/util"
)

// TunnelSpec defines one local->remote port forward run through ssh.
type TunnelSpec struct {
	Name       string `yaml:"name" json:"name"`
	LocalPort  int    `yaml:"local_port" json:"local_port"`
	RemoteHost string `yaml:"remote_host" json:"remote_host"`
	RemotePort int    `yaml:"remote_port" json:"remote_port"`
	Target     string `yaml:"target" json:"target"`
	AWSProfile string `yaml:"aws_profile,omitempty" json:"aws_profile,omitempty"`
	AWSRegion  string `yaml:"aws_region,omitempty" json:"aws_region,omitempty"`
}

// Validate checks the fields every spec must carry.
func (s TunnelSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("tunnel name cannot be empty")
	}
	if err := util.ValidatePort(s.LocalPort); err != nil {
		return fmt.Errorf("tunnel %s: invalid local port: %w", s.Name, err)
	}
	if err := util.ValidatePort(s.RemotePort); err != nil {
		return fmt.Errorf("tunnel %s: invalid remote port: %w", s.Name, err)
	}
	if strings.TrimSpace(s.RemoteHost) == "" {
		return fmt.Errorf("tunnel %s: remote host cannot be empty", s.Name)
	}
	if strings.TrimSpace(s.Target) == "" {
		return fmt.Errorf("tunnel %s: target cannot be empty", s.Name)
	}
	return nil
}

// ForwardArg renders the -L argument for ssh.
func (s TunnelSpec) ForwardArg() string {
	return fmt.Sprintf("%d:%s:%d", s.LocalPort, s.RemoteHost, s.RemotePort)
}

// Env returns the extra environment the forwarding process runs with.
func (s TunnelSpec) Env() []string {
	var env []string
	if s.AWSRegion != "" {
		env = append(env, "AWS_REGION="+s.AWSRegion)
	}
	if s.AWSProfile != "" {
		env = append(env, "AWS_PROFILE="+s.AWSProfile)
	}
	return env
}

type TunnelState string

const (
	TunnelConnected    TunnelState = "connected"
	TunnelDisconnected TunnelState = "disconnected"
)

// TunnelStatus is one observation of a tunnel. LocalPort is set only when
// the tunnel is connected.
type TunnelStatus struct {
	Name      string      `json:"name"`
	State     TunnelState `json:"state"`
	LocalPort int         `json:"local_port,omitempty"`
}

func (s TunnelStatus) Connected() bool { return s.State == TunnelConnected }

// DesiredState is what a caller wants a tunnel to be.
type DesiredState string

const (
	DesiredOn  DesiredState = "on"
	DesiredOff DesiredState = "off"
)

// ParseDesiredState accepts on/off (and a few common spellings).
func ParseDesiredState(s string) (DesiredState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "up", "connect", "true":
		return DesiredOn, nil
	case "off", "down", "disconnect", "false":
		return DesiredOff, nil
	}
	return "", fmt.Errorf("desired state must be on or off, got %q", s)
}
