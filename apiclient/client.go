// Package apiclient talks to the Continuum REST API on behalf of a logged-in
// user, refreshing the access token when the server answers 401.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/continuum-app/continuum-cli/credentials"
)

// Auth endpoints. A 401 from any of them never triggers a refresh.
const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	RefreshPath  = "/auth/refresh"
	LogoutPath   = "/auth/logout"
)

var exemptPaths = []string{LoginPath, RegisterPath, RefreshPath, LogoutPath}

// Defaults applied by New.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
	DefaultMaxRetries     = 3
)

// HeaderRequestID carries a per-request identifier for server-side tracing.
const HeaderRequestID = "X-Request-ID"

// RefreshObserver is told about refreshes as they happen.
type RefreshObserver interface {
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
}

type noopObserver struct{}

func (noopObserver) Refreshing()         {}
func (noopObserver) RefreshOK()          {}
func (noopObserver) RefreshFailed(error) {}

// Request describes one API call. Path is relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v. An empty body is a no-op.
func (r *Response) Decode(v any) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Client issues authenticated API calls. It owns two HTTP clients: the main
// one, signed with the access and session tokens, and a refresh-only one,
// signed with the refresh token and used for nothing but RefreshPath.
type Client struct {
	baseURL        string
	api            *retry.Client
	refresher      *retry.Client
	creds          *credentials.Manager
	coord          *Coordinator
	refreshTimeout time.Duration
	observer       RefreshObserver
	userAgent      string
	log            zerolog.Logger
}

type options struct {
	timeout        time.Duration
	refreshTimeout time.Duration
	maxRetries     int
	httpClient     *http.Client
	observer       RefreshObserver
	userAgent      string
	log            zerolog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithTimeout bounds every network call made by the client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRefreshTimeout bounds the refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) { o.refreshTimeout = d }
}

// WithMaxRetries sets how often a call is retried on transient failures
// (network errors, 5xx, 429). A 401 is never retried this way.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithHTTPClient replaces the underlying HTTP client. The refresh client gets
// a shallow copy of it.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRefreshObserver reports refresh progress to obs.
func WithRefreshObserver(obs RefreshObserver) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithLogger sets the client's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.log = logger }
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, creds *credentials.Manager, opts ...Option) (*Client, error) {
	o := options{
		timeout:        DefaultTimeout,
		refreshTimeout: DefaultRefreshTimeout,
		maxRetries:     DefaultMaxRetries,
		observer:       noopObserver{},
		userAgent:      "continuum-cli",
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	apiHTTP := o.httpClient
	if apiHTTP == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		apiHTTP = &http.Client{
			Timeout: o.timeout,
			Jar:     jar,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	refreshHTTP := *apiHTTP

	api, err := retry.NewClient(
		retry.WithHTTPClient(apiHTTP),
		retry.WithMaxRetries(o.maxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request client: %w", err)
	}
	refresher, err := retry.NewClient(
		retry.WithHTTPClient(&refreshHTTP),
		retry.WithMaxRetries(o.maxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh client: %w", err)
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		api:            api,
		refresher:      refresher,
		creds:          creds,
		refreshTimeout: o.refreshTimeout,
		observer:       o.observer,
		userAgent:      o.userAgent,
		log:            o.log,
	}
	c.coord = NewCoordinator(c.refresh)
	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials returns the credential manager signing the client's requests.
func (c *Client) Credentials() *credentials.Manager {
	return c.creds
}

// Do sends req on the main client. A 401 on a non-auth endpoint triggers one
// coordinated refresh and a single retry of req; a second 401 is returned.
// Failures are always *Error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	retried := false
	for {
		var signedWith string
		resp, err := c.send(ctx, c.api, req, func(r *http.Request) {
			signedWith = c.creds.SignAPI(r)
		})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusBadRequest {
			return resp, nil
		}

		apiErr := newStatusError(resp.StatusCode, resp.Body)
		if resp.StatusCode != http.StatusUnauthorized || retried || isExempt(req.Path) {
			return nil, apiErr
		}
		retried = true

		// Someone else refreshed while this request was out; its 401 was for
		// the old token and the new one has not been tried yet.
		if current := c.creds.AccessToken(); current != "" && current != signedWith {
			c.log.Debug().Str("path", req.Path).Msg("access token replaced in flight, retrying")
			continue
		}

		if err := c.coord.Await(ctx); err != nil {
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				err = &Error{Message: "request cancelled while waiting for token refresh", Err: err}
			}
			return nil, err
		}
		c.log.Debug().Str("path", req.Path).Msg("retrying after token refresh")
	}
}

// Get decodes the JSON answer of a GET into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, &Request{Method: http.MethodGet, Path: path}, out)
}

// Post sends in as JSON and decodes the answer into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, &Request{Method: http.MethodPost, Path: path, Body: in}, out)
}

// Put sends in as JSON and decodes the answer into out.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, &Request{Method: http.MethodPut, Path: path, Body: in}, out)
}

// Delete sends a DELETE, with in as JSON body when non-nil.
func (c *Client) Delete(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, &Request{Method: http.MethodDelete, Path: path, Body: in}, out)
}

func (c *Client) call(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func isExempt(path string) bool {
	for _, endpoint := range exemptPaths {
		if strings.Contains(path, endpoint) {
			return true
		}
	}
	return false
}

// send performs one round trip (plus transport-level retries) on rc.
func (c *Client) send(
	ctx context.Context,
	rc *retry.Client,
	req *Request,
	sign func(*http.Request),
) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, &Error{Message: "failed to create request", Err: err}
	}
	sign(httpReq)

	requestID := httpReq.Header.Get(HeaderRequestID)
	start := time.Now()

	resp, err := rc.DoWithContext(ctx, httpReq)
	if err != nil {
		c.log.Debug().
			Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Str("request_id", requestID).
			Msg("request failed")
		return nil, &Error{Message: "network error", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: "failed to read response",
			Err:     err,
		}
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api response")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())
	return httpReq, nil
}

// refreshResponse is the body of a successful RefreshPath call.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refresh calls RefreshPath on the refresh client and applies the outcome:
// new tokens on success, all credentials cleared on failure.
func (c *Client) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	c.observer.Refreshing()

	tokens, err := c.requestRefresh(ctx)
	if err != nil {
		c.creds.Clear()
		c.log.Debug().Err(err).Msg("token refresh failed, credentials cleared")
		c.observer.RefreshFailed(err)
		return err
	}

	c.creds.Persist(credentials.Update{
		Access: credentials.Value(tokens.AccessToken),
		// Servers that do not rotate refresh tokens omit the field.
		Refresh: credentials.ValueOrKeep(tokens.RefreshToken),
	})
	c.log.Debug().Msg("token refreshed")
	c.observer.RefreshOK()
	return nil
}

func (c *Client) requestRefresh(ctx context.Context) (*refreshResponse, error) {
	resp, err := c.send(ctx, c.refresher, &Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
	}, c.creds.SignRefresh)
	if err != nil {
		return nil, refreshError(err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, refreshError(newStatusError(resp.StatusCode, resp.Body))
	}

	var tokens refreshResponse
	if err := resp.Decode(&tokens); err != nil {
		return nil, refreshError(&Error{Status: resp.StatusCode, Message: "invalid refresh response", Err: err})
	}
	if tokens.AccessToken == "" {
		return nil, refreshError(&Error{Status: resp.StatusCode, Message: "refresh response carried no access token"})
	}
	return &tokens, nil
}

// refreshError marks cause as a refresh failure, keeping its status and body.
func refreshError(cause error) *Error {
	e := &Error{
		Message: "token refresh failed",
		Err:     fmt.Errorf("%w: %w", ErrRefreshFailed, cause),
	}
	var apiErr *Error
	if errors.As(cause, &apiErr) {
		e.Status = apiErr.Status
		e.Message = apiErr.Message
		e.Data = apiErr.Data
	}
	return e
}
