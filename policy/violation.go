package policy

import (
	"errors"
	"fmt"
)

// Violation is a structured rejection of source code prior to execution.
// It is terminal: execution never starts once a violation is reported.
type Violation struct {
	// Construct is the offending import, package, or call.
	Construct string
	// Line is the 1-based line number of the violation.
	Line int
	// Reason explains why the construct is rejected.
	Reason string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	return fmt.Sprintf("policy violation at line %d: %s (%s)", v.Line, v.Construct, v.Reason)
}

// IsViolation reports whether err is (or wraps) a policy Violation.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}
