//go:build windows

package process

// DefaultTerminator terminates only the root process on Windows; job
// objects are not used, so descendants are not pursued.
func DefaultTerminator() Terminator { return DirectTerminator{} }
