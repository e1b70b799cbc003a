//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

func detach(_ *exec.Cmd) {}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// stopSignals both terminate the process; Windows has no graceful signal.
func stopSignals() (graceful, force syscall.Signal) {
	return syscall.SIGKILL, syscall.SIGKILL
}
