//go:build unix && !linux

package sshclient

import "syscall"

// sysProcAttr puts ssh in its own process group. There is no parent-death
// signal outside Linux, so ssh outlives a crashed devdeck here; a clean exit
// still goes through Supervisor.Shutdown.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
