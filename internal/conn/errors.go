package conn

// notConnectedError fails a send immediately when no session is open.
type notConnectedError struct{}

func (notConnectedError) Error() string { return "not connected to backend" }

// StatusCode maps a missing session to 503 for the control API layer.
func (notConnectedError) StatusCode() int { return 503 }

// ErrNotConnected constructs a notConnectedError.
func ErrNotConnected() error { return notConnectedError{} }

// IsNotConnected reports whether err indicates no open session.
func IsNotConnected(err error) bool {
	_, ok := err.(notConnectedError)
	return ok
}

// timeoutError fails a pending chat request whose reply never arrived.
type timeoutError struct{}

func (timeoutError) Error() string { return "timed out waiting for backend reply" }

// StatusCode maps a chat timeout to 504 for the control API layer.
func (timeoutError) StatusCode() int { return 504 }

// ErrTimeout constructs a timeoutError.
func ErrTimeout() error { return timeoutError{} }

// IsTimeout reports whether err indicates a chat reply deadline expired.
func IsTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}
