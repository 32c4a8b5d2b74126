package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PrefsSource yields the latest persisted preference set. Snapshots are
// taken at sync time, never at construction, so a reconnect always pushes
// current values.
type PrefsSource interface {
	Snapshot() map[string]string
}

// Syncer pushes local preferences to the backend on every (re)connection.
type Syncer struct {
	client *Client
	prefs  PrefsSource
	log    zerolog.Logger
}

func NewSyncer(client *Client, prefs PrefsSource, log zerolog.Logger) *Syncer {
	return &Syncer{client: client, prefs: prefs, log: log}
}

// OnConnect is invoked by the live connection after a session opens.
// Failures are logged, not retried; the next reconnect syncs again.
func (s *Syncer) OnConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.SyncFrontend(ctx, s.prefs.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("settings sync failed")
		return
	}
	s.log.Info().Msg("settings synced to backend")
}
