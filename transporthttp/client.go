package transporthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kestrel-sync/docsync/contract"
	"github.com/kestrel-sync/docsync/syncmodel"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultHealthTimeout  = 5 * time.Second
)

// ClientConfig configures Client.
type ClientConfig struct {
	// BaseURL is the server's address, e.g. "http://sync.internal:8080".
	BaseURL string

	// APIKey, if set, is sent as "Authorization: Bearer <APIKey>" on every
	// request.
	APIKey string

	// Headers are sent on every request in addition to Content-Type and the
	// optional Authorization header.
	Headers map[string]string

	// RequestTimeout bounds Pull/Push; HealthTimeout bounds IsOnline. Zero
	// values fall back to the spec's defaults (30s / 5s).
	RequestTimeout time.Duration
	HealthTimeout  time.Duration

	// RateLimit, if positive, caps outbound Pull/Push requests per second
	// with a burst of the same size; IsOnline and the websocket dial are not
	// throttled. Zero disables client-side throttling.
	RateLimit rate.Limit
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = defaultHealthTimeout
	}
	return c
}

// Client implements contract.Transport[T] against a Server, over plain HTTP
// for pull/push/health and a gorilla/websocket dial for real-time changes.
type Client[T any] struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu        sync.Mutex
	wsConn    *websocket.Conn
	wsCancel  context.CancelFunc
	handlers  map[int]contract.RemoteChangeHandler[T]
	handlerID int
}

var _ contract.Transport[struct{}] = (*Client[struct{}])(nil)

// NewClient builds a Client. logger may be nil.
func NewClient[T any](cfg ClientConfig, logger *slog.Logger) *Client[T] {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, int(cfg.RateLimit))
		if limiter.Burst() < 1 {
			limiter = rate.NewLimiter(cfg.RateLimit, 1)
		}
	}

	return &Client[T]{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    limiter,
		logger:     logger.With("component", "sync_http_client"),
		handlers:   make(map[int]contract.RemoteChangeHandler[T]),
	}
}

func (c *Client[T]) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client[T]) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Pull issues GET {base}/sync/pull?since={sinceTs}.
func (c *Client[T]) Pull(ctx context.Context, sinceTs syncmodel.Timestamp) (contract.PullResult[T], error) {
	if err := c.wait(ctx); err != nil {
		return contract.PullResult[T]{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	path := "/sync/pull?since=" + url.QueryEscape(strconv.FormatInt(int64(sinceTs), 10))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return contract.PullResult[T]{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contract.PullResult[T]{}, fmt.Errorf("pull request: %w", err)
	}
	defer resp.Body.Close()

	var wire pullResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return contract.PullResult[T]{}, fmt.Errorf("decoding pull response: %w", err)
	}
	if resp.StatusCode >= 300 && wire.Error == "" {
		wire.Error = fmt.Sprintf("pull failed with status %d", resp.StatusCode)
	}

	return contract.PullResult[T]{
		Success:   wire.Success,
		Changes:   wire.Changes,
		Timestamp: wire.Timestamp,
		Error:     wire.Error,
	}, nil
}

// Push issues POST {base}/sync/push with batch as the JSON body.
func (c *Client[T]) Push(ctx context.Context, batch syncmodel.ChangeBatch[T]) (contract.PushResult[T], error) {
	if err := c.wait(ctx); err != nil {
		return contract.PushResult[T]{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(batch)
	if err != nil {
		return contract.PushResult[T]{}, fmt.Errorf("encoding push batch: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/sync/push", bytes.NewReader(body))
	if err != nil {
		return contract.PushResult[T]{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contract.PushResult[T]{}, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	var wire pushResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return contract.PushResult[T]{}, fmt.Errorf("decoding push response: %w", err)
	}
	if resp.StatusCode >= 300 && wire.Error == "" {
		wire.Error = fmt.Sprintf("push failed with status %d", resp.StatusCode)
	}

	result := contract.PushResult[T]{
		Success:   wire.Success,
		Conflicts: wire.Conflicts,
		Error:     wire.Error,
	}
	if wire.Timestamp != nil {
		result.Timestamp = *wire.Timestamp
		result.HasTimestamp = true
	}
	return result, nil
}

// IsOnline issues GET {base}/health with a shorter timeout than Pull/Push;
// any 2xx response means online.
func (c *Client[T]) IsOnline(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// OnRemoteChange dials {base}/sync/ws (converted to ws/wss) and delivers
// every notified batch to handler. The first subscriber opens the
// connection; later subscribers share it. ok is always true for Client.
func (c *Client[T]) OnRemoteChange(handler contract.RemoteChangeHandler[T]) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlerID++
	id := c.handlerID
	c.handlers[id] = handler

	if c.wsConn == nil && c.wsCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.wsCancel = cancel
		go c.runWebsocket(ctx)
	}

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
		if len(c.handlers) == 0 && c.wsCancel != nil {
			c.wsCancel()
			c.wsCancel = nil
		}
	}
	return unsubscribe, true
}

func (c *Client[T]) wsURL() string {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/sync/ws"
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u
}

func (c *Client[T]) runWebsocket(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
		if err != nil {
			c.logger.Warn("websocket dial failed, retrying", "error", err)
			if !sleepOrDone(ctx, 5*time.Second) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.wsConn = conn
		c.mu.Unlock()

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.wsConn = nil
		c.mu.Unlock()

		if !sleepOrDone(ctx, 5*time.Second) {
			return
		}
	}
}

func (c *Client[T]) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		var notification wireChangeNotification[T]
		if err := conn.ReadJSON(&notification); err != nil {
			c.logger.Debug("websocket read ended", "error", err)
			return
		}

		c.mu.Lock()
		handlers := make([]contract.RemoteChangeHandler[T], 0, len(c.handlers))
		for _, h := range c.handlers {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()

		for _, h := range handlers {
			h(ctx, notification.Changes)
		}
	}
}

// Close stops the websocket connection, if one is open, and releases its
// goroutine.
func (c *Client[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsCancel != nil {
		c.wsCancel()
		c.wsCancel = nil
	}
	if c.wsConn != nil {
		c.wsConn.Close()
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
