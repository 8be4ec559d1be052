//go:build windows

package process

import (
	"os"
	"syscall"
)

// terminateSignal is the only signal os.Process supports on Windows.
var terminateSignal = os.Kill

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const processTerminate = 0x0001

// signalPID terminates a single Windows process by pid. Windows has no
// SIGTERM, so every member of the tree is terminated outright.
func signalPID(pid int) error {
	if pid <= 0 {
		return nil
	}
	ret, _, _ := procOpenProcess.Call(uintptr(processTerminate), 0, uintptr(uint32(pid)))
	if ret == 0 {
		// already gone
		return nil
	}
	h := syscall.Handle(ret)
	defer func() { _, _, _ = procCloseHandle.Call(uintptr(h)) }()

	if r, _, err := procTerminateProcess.Call(uintptr(h), uintptr(1)); r == 0 {
		return err
	}
	return nil
}
