//go:build !unix

package executor

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// processGroupAlive cannot probe descendants here; only a reaped leader
// counts as confirmed termination.
func processGroupAlive(cmd *exec.Cmd, reaped bool) bool {
	return cmd.Process != nil && !reaped
}
