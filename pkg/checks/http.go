package checks

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

// maxBodyBytes bounds how much of a response is read for BodyContains.
const maxBodyBytes = 1 << 20

// HTTPCheck requests a URL and verifies the response status and body.
type HTTPCheck struct {
	client       *http.Client
	url          string
	method       string
	headers      map[string]string
	expectStatus []int
	bodyContains string
	logger       zerolog.Logger
}

// NewHTTPCheck creates an HTTP check. With HTTP2 set the request is sent over
// an HTTP/2 transport, using cleartext h2c for http:// URLs.
func NewHTTPCheck(cfg config.HTTPCheckConfig, logger zerolog.Logger) (*HTTPCheck, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme: %s", u.Scheme)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	expect := cfg.ExpectStatus
	if len(expect) == 0 {
		expect = []int{http.StatusOK}
	}

	return &HTTPCheck{
		client:       &http.Client{Transport: buildTransport(cfg, u.Scheme)},
		url:          cfg.URL,
		method:       method,
		headers:      cfg.Headers,
		expectStatus: expect,
		bodyContains: cfg.BodyContains,
		logger:       logger.With().Str("check", "http").Str("url", cfg.URL).Logger(),
	}, nil
}

func buildTransport(cfg config.HTTPCheckConfig, scheme string) http.RoundTripper {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in per check
	}

	if !cfg.HTTP2 {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = tlsConfig
		t.DisableKeepAlives = true
		return t
	}

	t := &http2.Transport{TLSClientConfig: tlsConfig}
	if scheme == "http" {
		t.AllowHTTP = true
		t.DialTLSContext = func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		}
	}
	return t
}

// Check implements watchdog.Checker. The subject is ignored.
func (c *HTTPCheck) Check(ctx context.Context, _ any) error {
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, nil)
	if err != nil {
		return watchdog.NewFailedError("failed to build request", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("request aborted: %w", ctxErr)
		}
		if isRefused(err) {
			return watchdog.NewFailedError("connection refused", err)
		}
		return watchdog.NewImpossibleError("request failed", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("proto", resp.Proto).
		Dur("duration", time.Since(start)).
		Msg("Response received")

	if !slices.Contains(c.expectStatus, resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return watchdog.NewFailedError(
			fmt.Sprintf("unexpected status %d, want one of %v", resp.StatusCode, c.expectStatus), nil)
	}

	if c.bodyContains == "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return watchdog.NewImpossibleError("failed to read response body", err)
	}
	if !strings.Contains(string(body), c.bodyContains) {
		return watchdog.NewFailedError(fmt.Sprintf("response body does not contain %q", c.bodyContains), nil)
	}

	return nil
}
