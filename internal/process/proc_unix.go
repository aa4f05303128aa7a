//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configure starts the child in its own process group so helpers it forks
// are killed along with it.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func kill(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return p.Kill()
}
