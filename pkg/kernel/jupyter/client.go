// Package jupyter talks to kernels of a Jupyter Server over its REST API
// and kernel channels websocket.
package jupyter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/internal/version"
	"github.com/stateful/cellbook/pkg/kernel"
)

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// Client is a kernel.Manager backed by a Jupyter Server.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *zap.Logger

	mu      sync.RWMutex
	running []kernel.Model
}

var _ kernel.Manager = (*Client)(nil)

func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(elem ...string) *url.URL {
	u := *c.baseURL
	u.Path = path.Join(append([]string{"/", u.Path}, elem...)...)
	return &u
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.WithStack(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, u.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("%s %s: %s: %s", method, u.Path, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "failed to decode response")
}

// RefreshRunning fetches the running kernels.
func (c *Client) RefreshRunning(ctx context.Context) error {
	var models []kernel.Model
	if err := c.do(ctx, http.MethodGet, c.endpoint("api", "kernels"), nil, &models); err != nil {
		return err
	}

	c.mu.Lock()
	c.running = models
	c.mu.Unlock()

	c.logger.Debug("refreshed running kernels", zap.Int("count", len(models)))
	return nil
}

func (c *Client) Running() []kernel.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]kernel.Model(nil), c.running...)
}

// Start starts a kernel from the named kernelspec. An empty name starts
// the server's default kernel.
func (c *Client) Start(ctx context.Context, name string) (kernel.Model, error) {
	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	var model kernel.Model
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "kernels"), body, &model); err != nil {
		return kernel.Model{}, err
	}
	c.logger.Info("started kernel", zap.String("id", model.ID), zap.String("name", model.Name))
	return model, nil
}

func (c *Client) Shutdown(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("api", "kernels", id), nil, nil)
}

// ConnectTo opens the channels websocket of the kernel.
func (c *Client) ConnectTo(ctx context.Context, model kernel.Model) (kernel.Connection, error) {
	return dial(ctx, c, model)
}
