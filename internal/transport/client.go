// Package transport is the single HTTP access layer for the wallet API. It
// attaches credentials, unwraps response envelopes, normalizes errors and
// performs at most one coalesced token refresh per rejected request.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/storage"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderInitData      = "X-Telegram-Init-Data"
	HeaderRequestID     = "X-Request-ID"

	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 10 << 20
)

// Refresher mints a new access token, persists it and returns it. Returning an
// AuthError ends the session; any other error leaves it in place.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// LogoutHook is called once when a failed refresh ends the session.
type LogoutHook func(cause error)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Store      storage.CredentialStore
	// InitData is sent as X-Telegram-Init-Data on every request when set.
	InitData  string
	Limiter   *rate.Limiter
	Metrics   *Metrics
	Refresher Refresher
}

// Request describes one logical API call. Route overrides Path as the metrics
// label for parameterized paths.
type Request struct {
	Method      string
	Path        string
	Route       string
	Query       url.Values
	Body        any
	SkipAuth    bool
	SkipRefresh bool
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r Request) route() string {
	if r.Route != "" {
		return r.Route
	}
	return r.Path
}

type Client struct {
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	store    storage.CredentialStore
	initData string
	limiter  *rate.Limiter
	metrics  *Metrics

	mu        sync.RWMutex
	refresher Refresher
	onLogout  []LogoutHook

	refreshGroup singleflight.Group
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("transport: base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("transport: invalid base URL %q", opts.BaseURL)
	}
	if opts.Store == nil {
		return nil, errors.New("transport: credential store is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:   base,
		timeout:   timeout,
		http:      httpClient,
		store:     opts.Store,
		initData:  opts.InitData,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		refresher: opts.Refresher,
	}, nil
}

// NewFromConfig builds a client from loaded configuration.
func NewFromConfig(cfg *config.Config, store storage.CredentialStore, metrics *Metrics) (*Client, error) {
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	return New(Options{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.RequestTimeout,
		Store:    store,
		InitData: cfg.TelegramInitData,
		Limiter:  limiter,
		Metrics:  metrics,
	})
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) InitData() string {
	return c.initData
}

func (c *Client) Store() storage.CredentialStore {
	return c.store
}

// SetRefresher installs the refresh strategy. Without one, a 401 propagates as is.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

func (c *Client) OnLogout(hook LogoutHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLogout = append(c.onLogout, hook)
}

func (c *Client) getRefresher() Refresher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refresher
}

// Do sends req and decodes the business payload into out (which may be nil).
// A 401 triggers one refresh and one replay. The retry budget belongs to this
// call alone, so concurrent calls each get their own replay.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	requestID := logger.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logger.WithRequestID(ctx, requestID)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("transport: encode request body: %w", err)
		}
	}

	res, err := c.send(ctx, req, body, requestID)
	if err != nil {
		return err
	}

	if res.status == http.StatusUnauthorized && c.canRefresh(req, res) {
		if _, err := c.refresh(ctx, res.token); err != nil {
			return err
		}
		logger.Debug(ctx, "replaying request with refreshed token", "method", req.method(), "path", req.route())
		res, err = c.send(ctx, req, body, requestID)
		if err != nil {
			return err
		}
	}

	if res.status < 200 || res.status > 299 {
		return parseError(res.status, res.body)
	}
	return decodePayload(res.status, res.body, out)
}

func (c *Client) canRefresh(req Request, res *response) bool {
	if req.SkipAuth || req.SkipRefresh {
		return false
	}
	// Nothing to refresh when the request went out without credentials.
	if res.token == "" {
		return false
	}
	return c.getRefresher() != nil
}

type response struct {
	status int
	body   []byte
	// token is the access token the request was sent with.
	token string
}

func (c *Client) send(ctx context.Context, req Request, body []byte, requestID string) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, networkError(err)
		}
	}

	var token string
	if !req.SkipAuth {
		session, err := c.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("transport: load credentials: %w", err)
		}
		token = session.AccessToken
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method(), c.url(req), reader)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set(HeaderAuthorization, "Bearer "+token)
	}
	if c.initData != "" {
		httpReq.Header.Set(HeaderInitData, c.initData)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(req.method(), req.route(), "error", time.Since(start))
		logger.Debug(ctx, "api request failed", "method", req.method(), "path", req.route(), "error", err)
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observeRequest(req.method(), req.route(), "error", elapsed)
		return nil, networkError(err)
	}

	c.metrics.observeRequest(req.method(), req.route(), strconv.Itoa(resp.StatusCode), elapsed)
	logger.Debug(ctx, "api request",
		"method", req.method(),
		"path", req.route(),
		"status", resp.StatusCode,
		"duration", elapsed,
	)

	return &response{status: resp.StatusCode, body: data, token: token}, nil
}

func (c *Client) url(req Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// refresh coalesces concurrent refreshes into one in-flight call. staleToken is
// the token the failed request carried; if the store already holds a different
// one, that token is reused without contacting the server.
func (c *Client) refresh(ctx context.Context, staleToken string) (string, error) {
	// The shared refresh must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		return c.doRefresh(shared, staleToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", networkError(ctx.Err())
	}
}

func (c *Client) doRefresh(ctx context.Context, staleToken string) (string, error) {
	session, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("transport: load credentials: %w", err)
	}
	if !session.HasToken() {
		return "", apierror.Auth("session ended", nil)
	}
	if session.AccessToken != staleToken {
		c.metrics.observeRefresh(RefreshReused)
		return session.AccessToken, nil
	}

	refresher := c.getRefresher()
	if refresher == nil {
		return "", apierror.Auth("token refresh unavailable", nil)
	}

	logger.Info(ctx, "access token rejected, refreshing")
	token, err := refresher.Refresh(ctx)
	if err != nil {
		// Only an AuthError ends the session. Offline, 5xx and local storage
		// failures keep it for the next attempt.
		if !apierror.IsAuth(err) {
			c.metrics.observeRefresh(RefreshError)
			logger.Warn(ctx, "token refresh failed, keeping session", "error", err)
			return "", err
		}

		c.metrics.observeRefresh(RefreshFailure)
		logger.Warn(ctx, "token refresh rejected, ending session", "error", err)
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			logger.Error(ctx, "failed to clear credentials", "error", clearErr)
		}
		c.fireLogout(err)
		return "", err
	}

	if token == "" {
		c.metrics.observeRefresh(RefreshFailure)
		return "", apierror.Auth("refresh returned no access token", nil)
	}

	c.metrics.observeRefresh(RefreshSuccess)
	return token, nil
}

func (c *Client) fireLogout(cause error) {
	c.mu.RLock()
	hooks := make([]LogoutHook, len(c.onLogout))
	copy(hooks, c.onLogout)
	c.mu.RUnlock()

	for _, hook := range hooks {
		hook(cause)
	}
}

func networkError(err error) *apierror.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apierror.Network("request timed out", err)
	case errors.Is(err, context.Canceled):
		return apierror.Network("request cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierror.Network("request timed out", err)
	}
	return apierror.Network("network error", err)
}
