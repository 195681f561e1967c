//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs detaches the background server from the console's Ctrl+C.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Windows cannot deliver SIGTERM to another process; both stop paths kill.
func sigTERM() syscall.Signal { return syscall.SIGKILL }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
