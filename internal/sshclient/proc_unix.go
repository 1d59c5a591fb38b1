//go:build unix

package sshclient

import (
	"errors"
	"os"
	"syscall"
)

// killGroup sends SIGKILL to the process group led by p, which also reaches
// children such as the SSM ProxyCommand plugin. If p never became a group
// leader only p itself is killed.
func killGroup(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return p.Kill()
	}
	return err
}
