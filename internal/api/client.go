// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package api is the REST client for the remote network. Every response
// is reduced to a uniform envelope of status code plus raw body; callers
// never see transport errors, which collapse to a zero status. Successful
// operations publish their payloads on the bus, where the entity store
// picks them up.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/periscope-app/periscope/internal/bus"
	"github.com/periscope-app/periscope/internal/metrics"
)

// Config holds the client settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/api/1".
	BaseURL string

	UserAgent string
	Timeout   time.Duration

	// RateLimit is the sustained request rate per second; RateBurst the
	// burst allowance. Zero values disable limiting.
	RateLimit float64
	RateBurst int
}

// ErrAPIStatus tags every remote API error. Callers match the class
// with errors.Is and reach the status through errors.As on *Error.
var ErrAPIStatus = errors.New("api: remote error")

// Error is a non-OK API response, normalized from the remote error
// envelope.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return ErrAPIStatus }

// Response is the uniform response envelope. Status 0 means the request
// never produced a usable response (network failure, open breaker,
// non-JSON body).
type Response struct {
	Status int
	Data   json.RawMessage
}

// OK reports whether the response carries a usable payload.
func (r Response) OK() bool { return r.Status == http.StatusOK }

// Err converts a non-OK response into a typed error, nil otherwise.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	msg := errorMessage(r.Data)
	return &Error{Status: r.Status, Message: msg}
}

// Client performs authenticated requests against the remote API. The
// session rides on the cookie jar after the login bootstrap.
type Client struct {
	http      *http.Client
	base      *url.URL
	bus       *bus.Bus
	log       zerolog.Logger
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// New creates a Client. The cookie jar is fresh; the session starts on
// the first successful login.
func New(cfg Config, b *bus.Bus, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("api: cookie jar: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "remote-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		http:      &http.Client{Jar: jar, Timeout: cfg.Timeout},
		base:      base,
		bus:       b,
		log:       logger.With().Str("component", "api").Logger(),
		limiter:   limiter,
		breaker:   breaker,
		userAgent: cfg.UserAgent,
	}, nil
}

// basicAuth carries login-bootstrap credentials. Only the login request
// sets it.
type basicAuth struct {
	username string
	password string
}

// request performs one API call and reduces it to the envelope. It never
// returns a transport error; those come back as status 0.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, auth *basicAuth) Response {
	requestID := uuid.NewString()
	start := time.Now()
	resp := c.do(ctx, requestID, method, path, query, body, auth)
	metrics.ObserveAPIRequest(method, resp.Status, time.Since(start))
	c.log.Trace().
		Str("requestId", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.Status).
		Dur("elapsed", time.Since(start)).
		Msg("api request")
	return resp
}

func (c *Client) do(ctx context.Context, requestID, method, path string, query url.Values, body any, auth *basicAuth) Response {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}
		}
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			c.log.Error().Err(err).Str("path", path).Msg("encode request body")
			return Response{}
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("build request")
		return Response{}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	if auth != nil {
		creds := uriEscape(auth.username) + ":" + uriEscape(auth.password)
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return Response{}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("read response body")
		return Response{}
	}

	status := resp.StatusCode
	if !json.Valid(data) {
		c.log.Warn().Int("status", status).Str("path", path).Msg("non-json response body")
		return Response{}
	}

	// The remote wraps errors as {"error": {"message", "status_code"}}
	// with a 200-level outer status in some paths; the inner code wins.
	var envelope struct {
		Error *struct {
			Message    string          `json:"message"`
			StatusCode json.RawMessage `json:"status_code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		if code, ok := intValue(envelope.Error.StatusCode); ok {
			status = code
		}
	}

	if status != http.StatusOK {
		c.log.Debug().Str("requestId", requestID).Int("status", status).Str("method", method).Str("path", path).
			Str("error", errorMessage(data)).Msg("api error")
	}
	return Response{Status: status, Data: data}
}

// errorMessage extracts the human-readable message from an error body.
// The message itself is sometimes JSON-encoded one extra time.
func errorMessage(data []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == nil {
		return "An unknown error occurred"
	}
	msg := envelope.Error.Message
	if msg == "" {
		return "An unknown error occurred"
	}
	var inner struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(msg), &inner); err == nil && inner.Message != "" {
		return inner.Message
	}
	var plain string
	if err := json.Unmarshal([]byte(msg), &plain); err == nil {
		return plain
	}
	return msg
}

// intValue decodes a JSON number or numeric string.
func intValue(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// uriEscape percent-encodes credentials the way the web client does
// before the Basic header, keeping multi-byte characters intact.
func uriEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// listItems decodes a page payload into its raw records.
func listItems(data json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("api: decode listing: %w", err)
	}
	return items, nil
}
