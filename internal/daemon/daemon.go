package daemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"bridged/internal/bridge"
	"bridged/internal/conn"
	"bridged/internal/events"
	"bridged/internal/prefs"
	"bridged/internal/supervisor"
	"bridged/internal/switcher"
	"bridged/pkg/types"
)

// Config aggregates the per-component configuration.
type Config struct {
	Supervisor supervisor.Config
	Conn       conn.Config
	Switcher   switcher.Config
	PrefsPath  string
}

// Daemon owns the backend session: the supervised subprocess, the live
// connection, the settings bridge and the switch workflow. All shared state
// (port, connection handle, process handle) lives behind these components
// rather than in ambient globals.
type Daemon struct {
	log    zerolog.Logger
	broker *events.Broker
	prefs  *prefs.Store
	sup    *supervisor.Supervisor
	client *bridge.Client
	syncer *bridge.Syncer
	conn   *conn.Conn
	sw     *switcher.Switcher
}

func New(cfg Config, log zerolog.Logger) (*Daemon, error) {
	broker := events.NewBroker()
	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return nil, err
	}
	sup := supervisor.New(cfg.Supervisor, log.With().Str("component", "supervisor").Logger(), broker)
	client := bridge.NewClient(
		func() int { return sup.Port().Value },
		log.With().Str("component", "bridge").Logger(),
		bridge.WithHost(cfg.Conn.Host),
	)
	syncer := bridge.NewSyncer(client, store, log.With().Str("component", "sync").Logger())
	c := conn.New(cfg.Conn, conn.Deps{
		Port:           func() int { return sup.Port().Value },
		ConfirmPort:    sup.ConfirmPort,
		BackendRunning: sup.Running,
		OnConnect:      syncer.OnConnect,
	}, log.With().Str("component", "conn").Logger(), broker)
	sw := switcher.New(cfg.Switcher, client, store, log.With().Str("component", "switch").Logger(), broker)

	return &Daemon{
		log:    log,
		broker: broker,
		prefs:  store,
		sup:    sup,
		client: client,
		syncer: syncer,
		conn:   c,
		sw:     sw,
	}, nil
}

// Start spawns the backend and begins the connection loop. A missing backend
// script is reported, not fatal: the shell stays up and the UI is told the
// backend is not running.
func (d *Daemon) Start(ctx context.Context) {
	if err := d.sup.Start(); err != nil {
		d.log.Error().Err(err).Msg("backend not started")
		d.broker.Publish(events.Event{Name: "backend_status", Fields: map[string]any{
			"connected":       false,
			"backend_running": false,
			"error":           err.Error(),
		}})
	}
	go d.conn.Run(ctx)
}

// Stop terminates the backend subprocess.
func (d *Daemon) Stop() { d.sup.Stop() }

// Chat sends one message over the live session and waits for the reply.
func (d *Daemon) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatReply, error) {
	return d.conn.Send(ctx, req.Message, req.Context)
}

// Status reports connection, process liveness and the discovered port.
func (d *Daemon) Status() types.StatusResponse {
	st := d.conn.Status()
	st.PortConfirmed = d.sup.Port().Confirmed()
	return st
}

// Relay proxies a UI-originated request to the backend HTTP surface.
func (d *Daemon) Relay(ctx context.Context, method, path string, payload map[string]any) (json.RawMessage, error) {
	return d.client.Relay(ctx, method, path, payload)
}

// Settings returns a copy of the persisted preference set.
func (d *Daemon) Settings() map[string]string { return d.prefs.Snapshot() }

// SaveSettings persists vals, re-syncs the backend best-effort, and starts a
// model switch when the selection changed (against either the local or the
// backend notion of current).
func (d *Daemon) SaveSettings(vals map[string]string) error {
	prevModel := d.prefs.Selected()
	if err := d.prefs.Replace(vals); err != nil {
		return err
	}
	go d.syncer.OnConnect()
	if model, ok := vals[prefs.KeyAIModel]; ok && model != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		needs := model != prevModel || d.sw.NeedsSwitch(ctx, model)
		cancel()
		if needs {
			if err := d.sw.Start(context.Background(), model); err != nil {
				d.log.Warn().Err(err).Str("model", model).Msg("switch not started")
			}
		}
	}
	return nil
}

// StartSwitch launches the model switch workflow.
func (d *Daemon) StartSwitch(ctx context.Context, model string) error {
	return d.sw.Start(ctx, model)
}

// SwitchStatus snapshots the current (or last) switch job.
func (d *Daemon) SwitchStatus() types.SwitchStatus { return d.sw.Status() }

// Subscribe attaches a UI event stream.
func (d *Daemon) Subscribe() (<-chan events.Event, func()) { return d.broker.Subscribe() }
