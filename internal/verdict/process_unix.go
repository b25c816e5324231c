//go:build !windows

package verdict

import (
	"os/exec"
	"syscall"
)

// isolate runs cmd in its own process group so cancellation also stops the
// processes it spawned.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
