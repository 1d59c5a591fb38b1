//go:build linux

package sshclient

import "syscall"

// sysProcAttr puts ssh in its own process group, so a terminal Ctrl-C only
// reaches devdeck and Kill can take a ProxyCommand child down with it. The
// kernel kills ssh if devdeck dies first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
