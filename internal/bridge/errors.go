package bridge

import "fmt"

// noPortError signals that no backend port has been discovered yet.
type noPortError struct{}

func (noPortError) Error() string { return "backend port unknown" }

// IsNoPort reports whether err indicates an undiscovered backend port.
func IsNoPort(err error) bool {
	_, ok := err.(noPortError)
	return ok
}

// backendError carries a failure reported by the backend, either a non-2xx
// HTTP status or a success=false body. It is a result, never a panic.
type backendError struct {
	status int
	msg    string
}

func (e backendError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("backend error (http %d): %s", e.status, e.msg)
	}
	return "backend error: " + e.msg
}

// StatusCode maps backend failures to 502 for the control API layer.
func (e backendError) StatusCode() int { return 502 }

// ErrBackend constructs a backendError.
func ErrBackend(status int, msg string) error { return backendError{status: status, msg: msg} }

// IsBackendError reports whether err is a failure reported by the backend.
func IsBackendError(err error) bool {
	_, ok := err.(backendError)
	return ok
}
