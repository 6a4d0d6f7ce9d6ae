package checks

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestHTTPCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/degraded":
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		case "/header":
			if r.Header.Get("X-Token") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
			}
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	tests := []struct {
		name string
		cfg  config.HTTPCheckConfig
		want watchdog.OutcomeKind
	}{
		{
			name: "ok",
			cfg:  config.HTTPCheckConfig{URL: server.URL + "/healthz"},
			want: watchdog.OutcomeOK,
		},
		{
			name: "unexpected status",
			cfg:  config.HTTPCheckConfig{URL: server.URL + "/down"},
			want: watchdog.OutcomeFailed,
		},
		{
			name: "expected status list",
			cfg:  config.HTTPCheckConfig{URL: server.URL + "/teapot", ExpectStatus: []int{200, 418}},
			want: watchdog.OutcomeOK,
		},
		{
			name: "body contains",
			cfg:  config.HTTPCheckConfig{URL: server.URL + "/healthz", BodyContains: `"ok"`},
			want: watchdog.OutcomeOK,
		},
		{
			name: "body missing text",
			cfg:  config.HTTPCheckConfig{URL: server.URL + "/degraded", BodyContains: `"ok"`},
			want: watchdog.OutcomeFailed,
		},
		{
			name: "headers",
			cfg: config.HTTPCheckConfig{
				URL:     server.URL + "/header",
				Method:  http.MethodHead,
				Headers: map[string]string{"X-Token": "secret"},
			},
			want: watchdog.OutcomeOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check, err := NewHTTPCheck(tt.cfg, testLogger())
			if err != nil {
				t.Fatalf("Failed to create check: %v", err)
			}

			got := watchdog.Classify(nil, check.Check(context.Background(), nil))
			if got.Kind != tt.want {
				t.Errorf("Expected %s, got %s (cause: %v)", tt.want, got.Kind, got.Cause)
			}
		})
	}
}

func TestHTTPCheck_Refused(t *testing.T) {
	check, err := NewHTTPCheck(config.HTTPCheckConfig{URL: "http://" + closedAddress(t) + "/"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create check: %v", err)
	}

	err = check.Check(context.Background(), nil)
	if !watchdog.IsFailed(err) {
		t.Errorf("Expected failed error, got %v", err)
	}
}

func TestHTTPCheck_Unresolvable(t *testing.T) {
	check, err := NewHTTPCheck(config.HTTPCheckConfig{URL: "http://watchdog.invalid/"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create check: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = check.Check(ctx, nil)
	if !watchdog.IsImpossible(err) {
		t.Errorf("Expected impossible error, got %v", err)
	}
}

func TestHTTPCheck_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	check, err := NewHTTPCheck(config.HTTPCheckConfig{URL: server.URL}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create check: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = check.Check(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if got := watchdog.Classify(nil, err); got.Kind != watchdog.OutcomeImpossible {
		t.Errorf("Expected timeout to classify as impossible, got %s", got.Kind)
	}
}

func TestHTTPCheck_HTTP2(t *testing.T) {
	var proto atomic.Int32
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proto.Store(int32(r.ProtoMajor))
	}))
	server.EnableHTTP2 = true
	server.StartTLS()
	defer server.Close()

	check, err := NewHTTPCheck(config.HTTPCheckConfig{
		URL:                server.URL,
		HTTP2:              true,
		InsecureSkipVerify: true,
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create check: %v", err)
	}

	if err := check.Check(context.Background(), nil); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if proto.Load() != 2 {
		t.Errorf("Expected HTTP/2 request, got HTTP/%d", proto.Load())
	}
}

func TestNewHTTPCheck_InvalidURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "://"} {
		if _, err := NewHTTPCheck(config.HTTPCheckConfig{URL: raw}, testLogger()); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

// closedAddress returns a loopback address nothing listens on.
func closedAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.CheckConfig
		wantErr string
	}{
		{name: "http", cfg: config.CheckConfig{Type: "http", HTTP: &config.HTTPCheckConfig{URL: "http://localhost/"}}},
		{name: "tcp", cfg: config.CheckConfig{Type: "tcp", TCP: &config.TCPCheckConfig{Address: "localhost:1"}}},
		{name: "exec", cfg: config.CheckConfig{Type: "exec", Exec: &config.ExecCheckConfig{Command: "true"}}},
		{name: "script", cfg: config.CheckConfig{Type: "script", Script: &config.ScriptCheckConfig{Source: "def check(s):\n    pass\n"}}},
		{name: "missing settings", cfg: config.CheckConfig{Type: "tcp"}, wantErr: "tcp settings"},
		{name: "missing script settings", cfg: config.CheckConfig{Type: "script"}, wantErr: "script settings"},
		{name: "unknown", cfg: config.CheckConfig{Type: "icmp"}, wantErr: "unsupported check type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, err := FromConfig(tt.cfg, testLogger())
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromConfig() error = %v", err)
			}
			if checker == nil {
				t.Error("Expected a checker")
			}
		})
	}
}
