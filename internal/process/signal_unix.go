//go:build !windows

package process

import "syscall"

// terminateSignal is the signal sent to every member of a process tree.
const terminateSignal = syscall.SIGTERM

// signalPID delivers the termination signal to a single pid.
func signalPID(pid int) error {
	return syscall.Kill(pid, terminateSignal)
}
