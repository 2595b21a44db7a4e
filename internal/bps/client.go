package bps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the bridging endpoint listing units per level+parent.
	DefaultBaseURL = "https://sig.bps.go.id/rest-bridging/getwilayah"
	// DefaultPeriodeURL lists the available periode_merge snapshots.
	DefaultPeriodeURL = "https://sig.bps.go.id/rest-drop-down/getperiode"
)

// baseHeaders mimics the browser session the upstream hands cookies to.
// Requests without these get bounced to the login page.
var baseHeaders = map[string]string{
	"Accept":           "*/*",
	"Accept-Language":  "en-US,en;q=0.9",
	"Referer":          "https://sig.bps.go.id/bridging-kode/index",
	"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
	"X-Requested-With": "XMLHttpRequest",
}

// Client issues authenticated requests against the BPS bridging API. The
// zero value is not usable; construct with New. Safe for concurrent use: all
// fields are read-only after construction.
type Client struct {
	BaseURL    string
	PeriodeURL string
	Cookie     string
	MaxRetries int
	Delay      time.Duration
	HTTPClient *http.Client

	// Logf receives progress lines; nil disables them.
	Logf func(format string, args ...any)
}

// New creates a client with sane defaults. The cookie is passed through
// verbatim as the Cookie header.
func New(cookie string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		PeriodeURL: DefaultPeriodeURL,
		Cookie:     cookie,
		MaxRetries: 3,
		Delay:      250 * time.Millisecond,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			// A redirect means the session died; surface it instead of
			// following to the login page.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// FetchWilayah requests one level's units under the given parent and returns
// the exact response bytes alongside the parsed units. Parent is empty for
// the provinsi level.
func (c *Client) FetchWilayah(ctx context.Context, level Level, parent, periode string) ([]byte, []Unit, error) {
	params := url.Values{}
	params.Set("level", level.String())
	params.Set("parent", parent)
	params.Set("periode_merge", periode)
	payload, err := c.get(ctx, c.BaseURL, params)
	if err != nil {
		return nil, nil, err
	}
	units, err := ParseUnits(payload, level, parent)
	if err != nil {
		return payload, nil, err
	}
	return payload, units, nil
}

// ListPeriodes fetches the periode catalogue, newest first per the
// upstream's own ordering.
func (c *Client) ListPeriodes(ctx context.Context) ([]string, error) {
	payload, err := c.get(ctx, c.PeriodeURL, nil)
	if err != nil {
		return nil, err
	}
	periodes, err := extractPeriodes(payload)
	if err != nil {
		return nil, &MalformedError{URL: c.PeriodeURL, Err: err}
	}
	return periodes, nil
}

// LatestPeriode resolves the most recent reporting period. Fails if the
// catalogue is empty; nothing downstream can run without a periode.
func (c *Client) LatestPeriode(ctx context.Context) (string, error) {
	periodes, err := c.ListPeriodes(ctx)
	if err != nil {
		return "", err
	}
	if len(periodes) == 0 {
		return "", &MalformedError{URL: c.PeriodeURL, Err: fmt.Errorf("periode catalogue is empty")}
	}
	return periodes[0], nil
}

// get performs one GET with bounded retry and linear backoff. Transport
// failures and non-2xx statuses are retried up to MaxRetries attempts;
// authentication failures are not (a dead cookie stays dead).
func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}
	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.logf("retrying %s (attempt %d/%d)", reqURL, attempt, attempts)
			if err := sleepCtx(ctx, time.Duration(attempt)*c.Delay); err != nil {
				return nil, &TransportError{URL: reqURL, Err: err}
			}
		}
		payload, err := c.once(ctx, reqURL)
		if err == nil {
			return payload, nil
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	for k, v := range baseHeaders {
		req.Header.Set(k, v)
	}
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, &AuthError{URL: reqURL, Reason: fmt.Sprintf("redirected (HTTP %d), session cookie expired or invalid", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{URL: reqURL, Status: resp.StatusCode}
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	if looksLikeLoginPage(resp.Header.Get("Content-Type"), payload) {
		return nil, &AuthError{URL: reqURL, Reason: "got an HTML page instead of JSON, session cookie expired or invalid"}
	}
	return payload, nil
}

func looksLikeLoginPage(contentType string, payload []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(string(payload))
	return strings.HasPrefix(trimmed, "<")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
