//go:build unix

package executor

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the child as the leader of a new process group so
// the whole tree can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	// group signalling refused; at least take down the leader
	return cmd.Process.Kill()
}

// processGroupAlive probes the group with signal 0. EPERM still means a
// member exists.
func processGroupAlive(cmd *exec.Cmd, _ bool) bool {
	if cmd.Process == nil {
		return false
	}
	err := unix.Kill(-cmd.Process.Pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
