package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bridged/pkg/types"
)

// PortFunc reports the current backend port, 0 while undiscovered.
type PortFunc func() int

// Client talks to the backend's HTTP surface. Download-class calls get a
// longer deadline than everything else.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
	port       PortFunc
	host       string

	callTimeout     time.Duration
	downloadTimeout time.Duration
}

// Option tweaks a Client.
type Option func(*Client)

// WithTimeouts overrides the per-call deadlines.
func WithTimeouts(call, download time.Duration) Option {
	return func(c *Client) {
		if call > 0 {
			c.callTimeout = call
		}
		if download > 0 {
			c.downloadTimeout = download
		}
	}
}

// WithHost overrides the backend host (default 127.0.0.1).
func WithHost(host string) Option {
	return func(c *Client) {
		if host != "" {
			c.host = host
		}
	}
}

// NewClient constructs a backend client. Timeout is intentionally 0 on the
// underlying http.Client: every call carries a context deadline.
func NewClient(port PortFunc, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: 0},
		log:             log,
		port:            port,
		host:            "127.0.0.1",
		callTimeout:     10 * time.Second,
		downloadTimeout: 5 * time.Minute,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) baseURL() (string, error) {
	p := c.port()
	if p <= 0 {
		return "", noPortError{}
	}
	return fmt.Sprintf("http://%s:%d", c.host, p), nil
}

// isDownloadPath classifies endpoints that move model weights and therefore
// deserve the long deadline.
func isDownloadPath(path string) bool {
	return strings.Contains(path, "/download")
}

// do performs one backend call and returns the raw body. A non-2xx status or
// a success=false envelope becomes a backendError.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	base, err := c.baseURL()
	if err != nil {
		return nil, err
	}
	timeout := c.callTimeout
	if isDownloadPath(path) {
		timeout = c.downloadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, ErrBackend(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var env types.BackendEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return raw, ErrBackend(0, msg)
	}
	return raw, nil
}

// Relay proxies an arbitrary UI-originated request to the backend.
func (c *Client) Relay(ctx context.Context, method, path string, payload map[string]any) (json.RawMessage, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	var body any
	if len(payload) > 0 {
		body = payload
	}
	raw, err := c.do(ctx, method, path, body)
	return json.RawMessage(raw), err
}

// SyncFrontend pushes the persisted preference set to the backend. Failures
// are the caller's to log; the sync retries naturally on the next reconnect.
func (c *Client) SyncFrontend(ctx context.Context, prefs map[string]string) error {
	_, err := c.do(ctx, http.MethodPost, "/settings/sync-frontend", prefs)
	return err
}

// CheckModel asks whether model is available locally on the backend.
func (c *Client) CheckModel(ctx context.Context, model string) (*types.ModelCheckResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, "/model/check", map[string]string{"model_name": model})
	if err != nil {
		return nil, err
	}
	var out types.ModelCheckResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadModel starts a background download on the backend.
func (c *Client) DownloadModel(ctx context.Context, model string) (*types.ModelDownloadResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, "/model/download", map[string]string{"model_name": model})
	if err != nil {
		return nil, err
	}
	var out types.ModelDownloadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadProgress polls the current download state.
func (c *Client) DownloadProgress(ctx context.Context) (*types.ModelProgressResponse, error) {
	raw, err := c.do(ctx, http.MethodGet, "/model/progress", nil)
	if err != nil {
		return nil, err
	}
	var out types.ModelProgressResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SwitchModel asks the backend to activate model.
func (c *Client) SwitchModel(ctx context.Context, model string) (*types.ModelSwitchResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, "/model/switch", map[string]string{"model_name": model})
	if err != nil {
		return nil, err
	}
	var out types.ModelSwitchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentModel reports the backend's active model.
func (c *Client) CurrentModel(ctx context.Context) (*types.ModelCurrentResponse, error) {
	raw, err := c.do(ctx, http.MethodGet, "/model/current", nil)
	if err != nil {
		return nil, err
	}
	var out types.ModelCurrentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
