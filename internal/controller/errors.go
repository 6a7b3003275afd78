package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownInstance is returned when the controller has no DHCP
	// instance with the requested name.
	ErrUnknownInstance = errors.New("unknown dhcp instance")
	// ErrUnknownGateway is returned when the controller has no gateway with
	// the requested name.
	ErrUnknownGateway = errors.New("unknown gateway")
)

// TransportError means the request never produced a controller response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a timeout.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// RejectedError is a non-success answer from the controller.
type RejectedError struct {
	Method string
	Path   string
	Result *Result

	kind error
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s %s: controller answered %d %s", e.Method, e.Path, e.Result.StatusCode, e.Result.Reason)
	if len(e.Result.Body) > 0 {
		msg += ": " + string(e.Result.Body)
	}
	return msg
}

// Unwrap exposes ErrUnknownInstance or ErrUnknownGateway when the
// rejection means the addressed object does not exist.
func (e *RejectedError) Unwrap() error {
	return e.kind
}
