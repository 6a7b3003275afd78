package provision

import (
	"errors"
	"fmt"
	"time"

	"sdnlab/internal/controller"
)

var ErrConvergenceTimeout = errors.New("host did not acquire an address")

// StageError reports the stage that aborted provisioning. Everything
// completed before it is left in place.
type StageError struct {
	Stage Stage
	// Result is the controller answer, if the stage got one.
	Result *controller.Result
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("provisioning aborted at stage %d (%s): %v", int(e.Stage), e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ConvergenceTimeoutError is returned when a host has no address after the
// configured bound.
type ConvergenceTimeoutError struct {
	Host    string
	Timeout time.Duration
	// LastErr is the last error seen while polling, if any.
	LastErr error
}

func (e *ConvergenceTimeoutError) Error() string {
	msg := fmt.Sprintf("host %s: no address after %s", e.Host, e.Timeout)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last poll error: %v)", e.LastErr)
	}
	return msg
}

func (e *ConvergenceTimeoutError) Is(target error) bool {
	return target == ErrConvergenceTimeout
}

func (e *ConvergenceTimeoutError) Unwrap() error {
	return e.LastErr
}
