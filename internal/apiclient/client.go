package apiclient

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

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/model"
	"golang.org/x/net/publicsuffix"
)

const maxResponseBytes = 4 << 20

// Client talks to the exam REST backend. Credentials travel as the session
// cookie set at login, held in the client's cookie jar.
type Client struct {
	base       *url.URL
	http       *http.Client
	log        zerolog.Logger
	cookieName string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Jar is replaced with
// a fresh cookie jar when nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCookieName sets the name of the session cookie cleared on logout.
func WithCookieName(name string) Option {
	return func(c *Client) { c.cookieName = name }
}

// WithTimeout bounds every request. Zero leaves calls unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client for baseURL (scheme and host, optional path prefix).
func New(baseURL string, log zerolog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:       u,
		http:       &http.Client{},
		log:        log.With().Str("component", "api_client").Logger(),
		cookieName: "token",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Jar exposes the session cookies, e.g. for a WebSocket dial.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// envelope is the wire shape of every response.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do issues one call. out may be nil when the caller needs no payload; a 2xx
// with an empty body is then accepted.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindApplication, Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("Request failed")
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	var respBody io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		respBody = brotli.NewReader(resp.Body)
	}
	raw, err := io.ReadAll(io.LimitReader(respBody, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Request done")

	var env envelope
	decodeErr := errors.New("empty body")
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{Kind: KindHTTPStatus, Op: op, StatusCode: resp.StatusCode}
		if decodeErr == nil {
			e.Message = env.Message
		}
		return e
	}

	if decodeErr != nil {
		if out == nil && len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		return &Error{Kind: KindApplication, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}

	if env.Status != model.StatusOK {
		msg := env.Message
		if msg == "" && env.Status != "" {
			msg = fmt.Sprintf("request failed with status %s", env.Status)
		}
		return &Error{Kind: KindApplication, Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &Error{Kind: KindApplication, Op: op, StatusCode: resp.StatusCode, Message: "response carried no data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindApplication, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func requireID(op, what string, id int64) error {
	if id <= 0 {
		return MissingContext(op, fmt.Sprintf("No %s is selected.", what))
	}
	return nil
}
