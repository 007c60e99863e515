//go:build windows

package process

import (
	"bytes"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

type windowsPlatform struct{}

func newPlatform() platform {
	return windowsPlatform{}
}

func (windowsPlatform) list() ([]Info, error) {
	cmd := exec.Command("tasklist", "/V", "/FO", "CSV", "/NH")
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseTasklist(bytes.NewReader(out))
}

func (windowsPlatform) killTree(pid int) error {
	cmd := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd.Run()
}

func (windowsPlatform) configure(cmd *exec.Cmd, spec Spec) {
	attr := &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	if spec.Hidden {
		attr.HideWindow = true
		attr.CreationFlags |= windows.CREATE_NO_WINDOW
	}
	cmd.SysProcAttr = attr
}
