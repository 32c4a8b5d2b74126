package switcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bridged/internal/bridge"
	"bridged/internal/events"
	"bridged/pkg/types"
)

// Phase is the lifecycle phase of a model switch job.
type Phase string

const (
	PhaseChecking    Phase = "checking"
	PhaseDownloading Phase = "downloading"
	PhaseSwitching   Phase = "switching"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
	// PhaseAbandoned is distinct from failed: the job was cancelled or the
	// poll budget ran out before the backend reported an outcome.
	PhaseAbandoned Phase = "abandoned"
)

func (p Phase) terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseAbandoned
}

// SelectionStore persists the locally selected model.
type SelectionStore interface {
	Selected() string
	SetSelected(model string) error
}

// Config bounds the polling loop.
type Config struct {
	// PollInterval between download progress queries.
	PollInterval time.Duration
	// MaxPolls caps the number of progress queries before abandoning.
	MaxPolls int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 900
	}
}

// Switcher runs one model switch job at a time:
// check availability, download if missing (polling progress), switch,
// persist the selection, report the outcome.
type Switcher struct {
	cfg    Config
	client *bridge.Client
	sel    SelectionStore
	log    zerolog.Logger
	pub    events.Publisher

	jobs *jobTable
}

func New(cfg Config, client *bridge.Client, sel SelectionStore, log zerolog.Logger, pub events.Publisher) *Switcher {
	cfg.applyDefaults()
	if pub == nil {
		pub = events.Noop()
	}
	return &Switcher{cfg: cfg, client: client, sel: sel, log: log, pub: pub, jobs: newJobTable()}
}

// NeedsSwitch reports whether model differs from the last persisted selection
// or from the backend's active model. The OR is deliberately permissive so
// drifted local and backend state self-heals.
func (s *Switcher) NeedsSwitch(ctx context.Context, model string) bool {
	if model == "" {
		return false
	}
	if model != s.sel.Selected() {
		return true
	}
	cur, err := s.client.CurrentModel(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("current model query failed; trusting local selection")
		return false
	}
	return cur.CurrentModel != "" && cur.CurrentModel != model
}

// Start launches a job for model in the background. Only one job may run at
// a time.
func (s *Switcher) Start(ctx context.Context, model string) error {
	if !s.jobs.begin(model) {
		return errJobActive{}
	}
	go s.run(ctx, model)
	return nil
}

// Status returns a snapshot of the current (or last) job.
func (s *Switcher) Status() types.SwitchStatus { return s.jobs.snapshot() }

// run drives the state machine to a terminal phase.
func (s *Switcher) run(ctx context.Context, model string) {
	outcome := s.drive(ctx, model)
	jobsTotal.WithLabelValues(string(outcome)).Inc()
	snap := s.jobs.snapshot()
	s.log.Info().Str("model", model).Str("phase", string(outcome)).Str("message", snap.Message).Msg("model switch finished")
	s.pub.Publish(events.Event{Name: "switch_" + string(outcome), Fields: map[string]any{
		"model":   model,
		"message": snap.Message,
	}})
}

func (s *Switcher) drive(ctx context.Context, model string) Phase {
	s.jobs.setPhase(PhaseChecking, 0, "checking availability of "+model)

	chk, err := s.client.CheckModel(ctx, model)
	if err != nil {
		return s.jobs.fail(fmt.Sprintf("model check failed: %v", err))
	}

	if !chk.Available {
		if ph := s.download(ctx, model); ph.terminal() {
			return ph
		}
	}

	s.jobs.setPhase(PhaseSwitching, 100, "switching to "+model)
	sw, err := s.client.SwitchModel(ctx, model)
	if err != nil {
		return s.jobs.fail(fmt.Sprintf("model switch failed: %v", err))
	}
	if err := s.sel.SetSelected(model); err != nil {
		s.log.Warn().Err(err).Msg("could not persist model selection")
	}
	msg := sw.Message
	if msg == "" {
		msg = "switched to " + model
	}
	return s.jobs.done(msg)
}

// download starts the backend download and polls progress on a fixed
// interval, bounded by the poll budget. Returns PhaseSwitching (as
// non-terminal continue marker) when the download completed.
func (s *Switcher) download(ctx context.Context, model string) Phase {
	s.jobs.setPhase(PhaseDownloading, 0, "downloading "+model)

	dl, err := s.client.DownloadModel(ctx, model)
	if err != nil {
		return s.jobs.fail(fmt.Sprintf("download start failed: %v", err))
	}
	if dl.Status == "completed" {
		return PhaseSwitching
	}

	for i := 0; i < s.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return s.jobs.abandon("switch cancelled while downloading")
		case <-time.After(s.cfg.PollInterval):
		}
		pr, err := s.client.DownloadProgress(ctx)
		if err != nil {
			// Transient poll failure; the budget still bounds the loop.
			s.log.Warn().Err(err).Msg("progress poll failed")
			continue
		}
		s.jobs.setPhase(PhaseDownloading, pr.Progress, fmt.Sprintf("downloading %s: %d%%", model, pr.Progress))
		if pr.Status == "failed" {
			msg := pr.Error
			if msg == "" {
				msg = "backend reported download failure"
			}
			return s.jobs.fail(msg)
		}
		if pr.Progress >= 100 || pr.Status == "completed" {
			return PhaseSwitching
		}
	}
	return s.jobs.abandon(fmt.Sprintf("download of %s still incomplete after %d polls", model, s.cfg.MaxPolls))
}
