package bridge

import (
	"errors"
	"fmt"
)

// CodeBadArgs is the error code reported for malformed request arguments.
const CodeBadArgs = "BAD_ARGS"

// ErrNotImplemented is returned for unknown method names.
var ErrNotImplemented = errors.New("method not implemented")

// ArgError reports a missing or mistyped request field.
type ArgError struct {
	Field string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("Invalid argument type for '%s'", e.Field)
}

func (e *ArgError) Code() string { return CodeBadArgs }

func badArg(field string) error { return &ArgError{Field: field} }
