package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bridged/internal/events"
	"bridged/pkg/types"
)

// Config holds session parameters for the live connection.
type Config struct {
	// Host of the backend, default 127.0.0.1.
	Host string
	// ReconnectDelay applies after a clean session close.
	ReconnectDelay time.Duration
	// RedialDelay applies after a transport error; shorter on purpose.
	RedialDelay time.Duration
	// PortPoll is how often the loop re-checks for a discovered port.
	PortPoll time.Duration
	// ChatTimeout bounds each chat request.
	ChatTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.RedialDelay <= 0 {
		c.RedialDelay = 3 * time.Second
	}
	if c.PortPoll <= 0 {
		c.PortPoll = 500 * time.Millisecond
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = 30 * time.Second
	}
}

// Deps are the collaborators of the connection.
type Deps struct {
	// Port reports the current backend port, 0 while undiscovered.
	Port func() int
	// ConfirmPort marks a port as validated by a successful connect.
	ConfirmPort func(int)
	// BackendRunning reports subprocess liveness for status payloads.
	BackendRunning func() bool
	// OnConnect runs after each successful (re)connection, e.g. settings sync.
	OnConnect func()
}

// Conn maintains one live bidirectional session to the backend and the
// request/response correlation for chat messages. A dropped session is
// re-dialed until the surrounding context is cancelled.
type Conn struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	pub  events.Publisher

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	writeMu sync.Mutex
	pending map[string]chan *types.ChatReply
}

func New(cfg Config, deps Deps, log zerolog.Logger, pub events.Publisher) *Conn {
	cfg.applyDefaults()
	if pub == nil {
		pub = events.Noop()
	}
	if deps.Port == nil {
		deps.Port = func() int { return 0 }
	}
	if deps.BackendRunning == nil {
		deps.BackendRunning = func() bool { return false }
	}
	return &Conn{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		pub:     pub,
		state:   Disconnected,
		pending: make(map[string]chan *types.ChatReply),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status builds the status payload for the UI shell.
func (c *Conn) Status() types.StatusResponse {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	return types.StatusResponse{
		Connected:      st == Connected,
		BackendRunning: c.deps.BackendRunning(),
		Port:           c.deps.Port(),
	}
}

// transition moves the state machine along its only legal cycle. Illegal
// moves are a programming error and are logged, not applied.
func (c *Conn) transition(next State) {
	c.mu.Lock()
	cur := c.state
	if cur == next {
		c.mu.Unlock()
		return
	}
	if !cur.legalNext(next) {
		c.mu.Unlock()
		c.log.Error().Str("from", cur.String()).Str("to", next.String()).Msg("illegal state transition dropped")
		return
	}
	c.state = next
	c.mu.Unlock()
	stateGauge.Set(float64(next))
	c.log.Info().Str("event", "state").Str("from", cur.String()).Str("to", next.String()).Msg("connection state changed")
}

// notifyStatus publishes a backend-status notification for the UI.
func (c *Conn) notifyStatus(connected bool) {
	c.pub.Publish(events.Event{Name: "backend_status", Fields: map[string]any{
		"connected":       connected,
		"backend_running": c.deps.BackendRunning(),
		"port":            c.deps.Port(),
	}})
}

// Run drives the connect/read/reconnect loop until ctx is cancelled.
func (c *Conn) Run(ctx context.Context) {
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	for {
		if ctx.Err() != nil {
			return
		}
		port := c.deps.Port()
		if port <= 0 {
			if !sleep(ctx, c.cfg.PortPoll) {
				return
			}
			continue
		}

		c.transition(Connecting)
		url := fmt.Sprintf("ws://%s:%d/ws", c.cfg.Host, port)
		ws, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			c.transition(Disconnected)
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Str("url", url).Err(err).Msg("dial failed")
			reconnectsTotal.Inc()
			if !sleep(ctx, c.cfg.RedialDelay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		if c.deps.ConfirmPort != nil {
			c.deps.ConfirmPort(port)
		}
		c.transition(Connected)
		c.notifyStatus(true)
		if c.deps.OnConnect != nil {
			go c.deps.OnConnect()
		}

		readErr := c.readPump(ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		c.transition(Disconnected)
		c.notifyStatus(false)
		_ = ws.Close()
		if ctx.Err() != nil {
			return
		}
		delay := c.cfg.RedialDelay
		if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			delay = c.cfg.ReconnectDelay
		}
		c.log.Info().Err(readErr).Dur("retry_in", delay).Msg("session dropped")
		reconnectsTotal.Inc()
		if !sleep(ctx, delay) {
			return
		}
	}
}

// readPump delivers inbound frames in arrival order until the session drops.
// Correlated chat responses satisfy their pending request; everything else is
// forwarded to the UI event stream.
func (c *Conn) readPump(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var frame types.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("unparseable frame dropped")
			continue
		}
		if frame.Type == types.FrameTypeChatResponse {
			var reply types.ChatReply
			if len(frame.Data) > 0 {
				if err := json.Unmarshal(frame.Data, &reply); err != nil {
					c.log.Warn().Err(err).Msg("bad chat_response payload")
					continue
				}
			}
			if ch := c.takePending(frame.ID); ch != nil {
				ch <- &reply
				continue
			}
			// Reply with no matching pending id: a late or cross-request
			// response. Dropping it is the correctness fix for the old
			// first-reply-wins behavior.
			c.log.Warn().Str("id", frame.ID).Msg("unmatched chat_response dropped")
			continue
		}
		c.pub.Publish(events.Event{Name: "backend_message", Fields: map[string]any{
			"type": frame.Type,
			"data": json.RawMessage(frame.Data),
		}})
	}
}

// addPending registers a reply channel under id.
func (c *Conn) addPending(id string, ch chan *types.ChatReply) {
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
}

// takePending removes and returns the reply channel for id, nil when absent.
func (c *Conn) takePending(id string) chan *types.ChatReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.pending[id]
	delete(c.pending, id)
	return ch
}

// Send writes one chat frame and waits for its correlated reply. It fails
// fast when no session is open and exactly once on timeout; the pending
// entry is released on every exit path.
func (c *Conn) Send(ctx context.Context, message, chatContext string) (*types.ChatReply, error) {
	c.mu.Lock()
	ws := c.ws
	st := c.state
	c.mu.Unlock()
	if st != Connected || ws == nil {
		return nil, ErrNotConnected()
	}

	id := uuid.NewString()
	ch := make(chan *types.ChatReply, 1)
	c.addPending(id, ch)
	defer c.takePending(id)

	frame := types.ChatFrame{
		ID:        id,
		Type:      types.FrameTypeChat,
		Message:   message,
		Context:   chatContext,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, b)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()
	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			chatTimeoutsTotal.Inc()
			return nil, ErrTimeout()
		}
		return nil, ctx.Err()
	}
}

// sleep waits d or until ctx is done; it reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
