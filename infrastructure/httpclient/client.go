// Package httpclient is the authenticated transport to the todoflow backend.
// It attaches bearer tokens and, when the backend answers 401, refreshes the
// token once and replays the request.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"todoflow/infrastructure/credential"
	"todoflow/infrastructure/identity"
)

const (
	DefaultTimeout    = 30 * time.Second
	RefreshCookieName = "refresh_token"
	refreshPath       = "/auth/refresh-token"
	maxResponseBytes  = 8 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport overrides the default round tripper, mostly for tests.
	Transport http.RoundTripper
}

// Request is one call to the backend. Body, when set, is JSON-encoded once
// and replayed verbatim on retry.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
	// Anonymous requests carry no bearer token and are never refreshed.
	Anonymous bool
}

// Response is a successful (2xx) backend answer with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// Client sends authenticated requests. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	jar        http.CookieJar
	store      *credential.Store
	provider   identity.Provider
	refresher  *refresher
	logger     *zap.Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// New builds a client for cfg.BaseURL. The provider may be nil when tokens
// only ever come from the credential store.
func New(cfg Config, store *credential.Store, provider identity.Provider, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host required", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:    base,
		http:       &http.Client{Timeout: cfg.Timeout, Jar: jar, Transport: cfg.Transport},
		jar:        jar,
		store:      store,
		provider:   provider,
		logger:     logger,
		tracer:     otel.Tracer("todoflow/httpclient"),
		propagator: otel.GetTextMapPropagator(),
	}
	c.refresher = newRefresher(c.refreshToken)
	return c, nil
}

// State reports whether a token refresh is in flight.
func (c *Client) State() RefreshState {
	return c.refresher.State()
}

// Preload resolves a bearer token ahead of the first request.
func (c *Client) Preload(ctx context.Context) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}
	c.logger.Debug("Token preloaded", zap.Int("length", len(token)))
	return nil
}

// Do sends req. On 401 the token is refreshed at most once and the request
// replayed once; a second 401 or a failed refresh signs the user out.
// Other failures are returned unchanged.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "todoflow.api "+req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	resp, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	if req.Anonymous {
		return c.finish(c.send(ctx, req, payload, ""))
	}

	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, payload, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return c.finish(resp, err)
	}

	next, err := c.nextToken(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("Token refresh failed; signing out", zap.Error(err), zap.String("path", req.Path))
		c.signOut(ctx)
		return nil, err
	}

	resp, err = c.send(ctx, req, payload, next)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("Request rejected after refresh; signing out", zap.String("path", req.Path))
		c.signOut(ctx)
	}
	return c.finish(resp, err)
}

// nextToken returns the token to retry with after sent was rejected. If the
// stored token already differs from sent, another request refreshed it in the
// meantime and no new refresh is needed.
func (c *Client) nextToken(ctx context.Context, sent string) (string, error) {
	if current := c.store.BearerToken(ctx); current != "" && current != sent {
		c.logger.Debug("Token changed while request was in flight; retrying")
		return current, nil
	}
	return c.refresher.refresh(ctx)
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	if token := c.store.BearerToken(ctx); token != "" {
		return token, nil
	}
	if c.provider == nil {
		return "", ErrNotAuthenticated
	}
	token, err := c.provider.MintToken(ctx, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return token, nil
}

// refreshToken exchanges the stored refresh token for a new bearer token.
// Only the refresher calls it.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "todoflow.auth.refresh")
	defer span.End()

	cred, ok := c.store.Current(ctx)
	if !ok || cred.RefreshToken == "" {
		span.SetStatus(codes.Error, ErrNoRefreshToken.Error())
		return "", ErrNoRefreshToken
	}

	c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: RefreshCookieName, Value: cred.RefreshToken, Path: "/"}})
	payload, err := json.Marshal(map[string]string{"refreshToken": cred.RefreshToken})
	if err != nil {
		return "", err
	}
	resp, err := c.send(ctx, &Request{Method: http.MethodPost, Path: refreshPath}, payload, "")
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := parseAPIError(resp.StatusCode, resp.Body)
		span.SetStatus(codes.Error, apiErr.Error())
		return "", apiErr
	}

	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := resp.Decode(&body); err != nil || body.AccessToken == "" {
		return "", fmt.Errorf("malformed refresh response: %v", err)
	}

	next := *cred
	next.BearerToken = body.AccessToken
	if body.RefreshToken != "" {
		next.RefreshToken = body.RefreshToken
	}
	c.store.Save(ctx, next)
	c.logger.Info("Access token refreshed", zap.String("uid", next.Identity.UID))
	return next.BearerToken, nil
}

func (c *Client) signOut(ctx context.Context) {
	c.store.Clear(ctx)
	if c.provider == nil {
		return
	}
	if err := c.provider.SignOut(ctx); err != nil {
		c.logger.Warn("Identity provider sign-out failed", zap.Error(err))
	}
}

// send performs a single HTTP exchange. Non-2xx statuses are not errors here.
func (c *Client) send(ctx context.Context, req *Request, payload []byte, token string) (*Response, error) {
	target := c.baseURL.JoinPath(req.Path)
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug("Request failed", zap.String("method", req.Method), zap.String("path", req.Path), zap.Error(err))
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("Request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func (c *Client) finish(resp *Response, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp.StatusCode, resp.Body)
	}
	return resp, nil
}
