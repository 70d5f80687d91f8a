//go:build !unix

package process

import (
	"errors"
	"os"
	"os/exec"
)

func configureCmd(cmd *exec.Cmd) {}

func killTree(p *os.Process) error {
	killDescendants(p.Pid)

	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
