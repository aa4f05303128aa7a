//go:build windows

package process

import (
	"os"
	"os/exec"
)

func configure(cmd *exec.Cmd) {
	// Windows has no process groups in the Setpgid sense.
}

func kill(p *os.Process) error {
	return p.Kill()
}
