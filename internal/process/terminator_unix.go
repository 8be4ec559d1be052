//go:build !windows

package process

// DefaultTerminator walks and signals the whole process tree on Unix.
func DefaultTerminator() Terminator { return NewTreeTerminator() }
