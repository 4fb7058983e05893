// Package linkedinmessaging is an unofficial client for LinkedIn's
// internal messaging API (the "voyager" API consumed by the web
// frontend). It authenticates through the scraped login form, keeps the
// session alive via cookies, and exposes conversation, message,
// reaction, media, and profile operations plus a real-time event
// stream.
//
// The remote API is undocumented and changes without notice; this
// package makes no stability promises about the shapes it decodes.
package linkedinmessaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wirebird/linkedin-messaging/internal/httpkit"
)

// Remote endpoints. The realtime host is distinct from the main site.
const (
	defaultBaseURL     = "https://www.linkedin.com"
	defaultRealtimeURL = "https://realtime.www.linkedin.com/realtime/connect"

	seedPath   = "/uas/login"
	loginPath  = "/checkpoint/lg/login-submit"
	verifyPath = "/checkpoint/challenge/verify"
	logoutPath = "/uas/logout"
	apiPath    = "/voyager/api"
)

// Retry budget for API calls. Only transient dial failures are retried
// (see httpkit.WithRetry); the realtime stream client does without,
// since its supervising loop already reconnects on any failure.
const (
	apiRetryCount = 2
	apiRetryDelay = 500 * time.Millisecond
)

// browserUserAgent is the fixed desktop browser identity presented on
// every request. The voyager API rejects unrecognized clients.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_5) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.116 Safari/537.36"

// baseHeaders are required on every API call. x-li-track mirrors the
// tracking blob the web client sends; the values are fixed.
var baseHeaders = map[string]string{
	"Accept-Language":           "en-AU,en-GB;q=0.9,en-US;q=0.8,en;q=0.7",
	"X-Li-Lang":                 "en_US",
	"X-Restli-Protocol-Version": "2.0.0",
	"X-Li-Track": `{"clientVersion":"1.2.6216","osName":"web",` +
		`"timezoneOffset":10,"deviceFormFactor":"DESKTOP","mpName":"voyager-web"}`,
}

// Client is a single-session LinkedIn messaging client. One Client owns
// one Session; ordinary operations are safe to issue concurrently once
// authenticated, but at most one Login attempt and one Listen task may
// run at a time against a given Client.
type Client struct {
	session  *Session
	registry *EventRegistry
	logger   *slog.Logger

	baseURL     string
	realtimeURL string

	challenge *Challenge

	api        *http.Client // API + auth calls; transport-level timeouts only
	stream     *http.Client // realtime stream; no overall timeout
	noRedirect *http.Client // logout; redirect status is the success signal
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for probe failures and listener
// diagnostics. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBaseURL overrides the main site URL (login pages and the voyager
// API are derived from it). Intended for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithRealtimeURL overrides the realtime connect URL. Intended for tests.
func WithRealtimeURL(u string) Option {
	return func(c *Client) { c.realtimeURL = u }
}

// NewClient creates a client with an empty, unauthenticated session.
func NewClient(opts ...Option) *Client {
	c := &Client{
		registry:    NewEventRegistry(),
		logger:      slog.Default(),
		baseURL:     defaultBaseURL,
		realtimeURL: defaultRealtimeURL,
	}
	for _, o := range opts {
		o(c)
	}
	c.attachSession(NewSession())
	return c
}

// RestoreClient creates a client whose session is rebuilt from a blob
// previously produced by Serialize. Fails with ErrCorruptSession when
// the blob is unusable.
func RestoreClient(blob []byte, opts ...Option) (*Client, error) {
	s, err := RestoreSession(blob)
	if err != nil {
		return nil, err
	}
	c := NewClient(opts...)
	c.attachSession(s)
	return c, nil
}

// Serialize persists the client's session. See Session.Serialize.
func (c *Client) Serialize() ([]byte, error) { return c.session.Serialize() }

// Session exposes the client's session state (cookie inspection, CSRF
// token). The session remains owned by the client.
func (c *Client) Session() *Session { return c.session }

// attachSession binds a session to the client, rebuilding the HTTP
// clients so their cookie jars point at it.
func (c *Client) attachSession(s *Session) {
	c.session = s
	c.api = httpkit.NewClient(
		httpkit.WithUserAgent(browserUserAgent),
		httpkit.WithJar(s),
		httpkit.WithRetry(apiRetryCount, apiRetryDelay),
		httpkit.WithLogger(c.logger),
	)
	c.stream = httpkit.NewClient(
		httpkit.WithTimeout(0),
		httpkit.WithUserAgent(browserUserAgent),
		httpkit.WithJar(s),
	)
	nr := *c.api
	nr.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.noRedirect = &nr
}

// resetSession discards all session state and starts over from an empty
// session, closing connections tied to the old one.
func (c *Client) resetSession() {
	if c.api != nil {
		c.api.CloseIdleConnections()
	}
	if c.stream != nil {
		c.stream.CloseIdleConnections()
	}
	c.challenge = nil
	c.attachSession(NewSession())
}

// applyHeaders stamps the base header set plus the CSRF token (once
// authenticated) onto an outgoing request.
func (c *Client) applyHeaders(req *http.Request) {
	for k, v := range baseHeaders {
		req.Header.Set(k, v)
	}
	if tok := c.session.CSRFToken(); tok != "" {
		req.Header.Set("Csrf-Token", tok)
	}
}

// apiURL joins a voyager API path and optional query parameters.
func (c *Client) apiURL(path string, params url.Values) string {
	u := c.baseURL + apiPath + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// get issues an authenticated GET against the voyager API.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.applyHeaders(req)
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	return resp, nil
}

// postJSON issues an authenticated JSON POST against the voyager API.
// A nil payload sends an empty body.
func (c *Client) postJSON(ctx context.Context, path string, params url.Values, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(path, params), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	return resp, nil
}

// postForm issues a form POST against an absolute URL. Used by the
// login flow, which talks to the site itself rather than the API.
func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.applyHeaders(req)
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", rawURL, err)
	}
	return resp, nil
}

// decodeResponse checks for a success status and decodes the JSON body
// into T. Unexpected statuses and undecodable bodies both surface as
// *ProtocolError.
func decodeResponse[T any](resp *http.Response) (*T, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProtocolError{
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}

// expectStatus drains the response and checks for one specific status.
func expectStatus(resp *http.Response, want int) error {
	if resp.StatusCode != want {
		return &ProtocolError{
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
	}
	httpkit.DrainAndClose(resp.Body, 4096)
	return nil
}
