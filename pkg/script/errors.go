package script

import (
	"errors"
	"fmt"
)

// ErrMalformedScript is returned for script nodes that cannot be evaluated:
// unknown shapes, unknown comparator subtypes, wrong operand counts and
// operands of the wrong type.
var ErrMalformedScript = errors.New("malformed script")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedScript, fmt.Sprintf(format, args...))
}
