//go:build !windows

package process

import (
	"bytes"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

type unixPlatform struct{}

func newPlatform() platform {
	return unixPlatform{}
}

func (unixPlatform) list() ([]Info, error) {
	out, err := exec.Command("ps", "-eo", "pid=,stat=,comm=").Output()
	if err != nil {
		return nil, err
	}
	return parsePS(bytes.NewReader(out))
}

// killTree signals the process group created in configure
func (unixPlatform) killTree(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}

func (unixPlatform) configure(cmd *exec.Cmd, _ Spec) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
