package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/Junith-K/guess-the-imposter/internal/obslog"
)

// HeaderProvider allows injecting per-request headers (auth tokens etc).
type HeaderProvider func() map[string]string

// Client talks to the chat bridge over HTTP. Broadcasts are best effort;
// direct-message failures are meaningful to callers and must be returned.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Info fetches the bridge self-description. Used by bridgecheck.
func (c *Client) Info(ctx context.Context) (*BridgeInfo, error) {
	var info BridgeInfo
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/config", nil, &info, false); err != nil {
		return nil, err
	}
	return &info, nil
}

// SendChannelMessage broadcasts text into a room. Fire and forget for callers:
// errors are returned but carry no game-state meaning.
func (c *Client) SendChannelMessage(ctx context.Context, room, text string) error {
	req := ReplyRequest{Type: "text", Room: room, Data: text}
	return c.doJSON(ctx, fasthttp.MethodPost, "/reply", req, nil, false)
}

// SendPrivateMessage delivers text to a single user. A non-nil error means the
// user is unreachable, which callers treat as grounds for removal.
func (c *Client) SendPrivateMessage(ctx context.Context, userID, text string) error {
	req := DirectRequest{Type: "dm", UserID: userID, Data: text}
	return c.doJSON(ctx, fasthttp.MethodPost, "/dm", req, nil, true)
}

// Members returns the current members of a room.
func (c *Client) Members(ctx context.Context, room string) ([]Member, error) {
	var resp membersResponse
	path := "/members?room=" + url.QueryEscape(room)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// IsRoomMember probes live room membership. Probe errors are logged and
// reported as "still a member" so a bridge hiccup never evicts players.
func (c *Client) IsRoomMember(ctx context.Context, room, userID string) bool {
	members, err := c.Members(ctx, room)
	if err != nil {
		obslog.L().Warn("membership_probe_error", zap.String("room", room), zap.String("user_id", userID), zap.Error(err))
		return true
	}
	for _, m := range members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("bridge api error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
