package switcher

import (
	"sync"

	"bridged/pkg/types"
)

// errJobActive signals a switch start while another job is running.
type errJobActive struct{}

func (errJobActive) Error() string { return "a model switch is already in progress" }

// StatusCode maps the conflict to 409 for the control API layer.
func (errJobActive) StatusCode() int { return 409 }

// IsJobActive reports whether err indicates a concurrent switch attempt.
func IsJobActive(err error) bool {
	_, ok := err.(errJobActive)
	return ok
}

// jobTable owns the single-job invariant and its snapshot.
type jobTable struct {
	mu       sync.Mutex
	model    string
	phase    Phase
	progress int
	message  string
	active   bool
}

func newJobTable() *jobTable { return &jobTable{} }

// begin claims the job slot; it reports false when a job is already active.
func (j *jobTable) begin(model string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active {
		return false
	}
	j.active = true
	j.model = model
	j.phase = PhaseChecking
	j.progress = 0
	j.message = ""
	return true
}

func (j *jobTable) setPhase(p Phase, progress int, message string) {
	j.mu.Lock()
	j.phase = p
	if progress > j.progress {
		j.progress = progress
	}
	j.message = message
	j.mu.Unlock()
}

func (j *jobTable) finish(p Phase, message string) Phase {
	j.mu.Lock()
	j.phase = p
	j.message = message
	j.active = false
	j.mu.Unlock()
	return p
}

func (j *jobTable) fail(message string) Phase    { return j.finish(PhaseFailed, message) }
func (j *jobTable) abandon(message string) Phase { return j.finish(PhaseAbandoned, message) }
func (j *jobTable) done(message string) Phase {
	j.mu.Lock()
	j.progress = 100
	j.mu.Unlock()
	return j.finish(PhaseDone, message)
}

func (j *jobTable) snapshot() types.SwitchStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return types.SwitchStatus{
		Active:   j.active,
		Model:    j.model,
		Phase:    string(j.phase),
		Progress: j.progress,
		Message:  j.message,
	}
}
