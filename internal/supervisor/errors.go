package supervisor

// scriptMissingError signals that the backend entry point is not on disk.
// Reported to the caller, never fatal to the shell.
type scriptMissingError struct{ path string }

func (e scriptMissingError) Error() string { return "backend script not found: " + e.path }

// ErrScriptMissing constructs a scriptMissingError.
func ErrScriptMissing(path string) error { return scriptMissingError{path: path} }

// IsScriptMissing reports whether err indicates a missing backend entry point.
func IsScriptMissing(err error) bool {
	_, ok := err.(scriptMissingError)
	return ok
}

// alreadyRunningError signals a Start while the subprocess is alive.
type alreadyRunningError struct{}

func (alreadyRunningError) Error() string { return "backend already running" }

// IsAlreadyRunning reports whether err indicates a duplicate Start.
func IsAlreadyRunning(err error) bool {
	_, ok := err.(alreadyRunningError)
	return ok
}
