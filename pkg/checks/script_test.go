package checks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
)

func TestScriptCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ready"))
	}))
	defer server.Close()

	tests := []struct {
		name    string
		source  string
		want    watchdog.OutcomeKind
		errText string
	}{
		{
			name:   "returns none",
			source: "def check(subject):\n    pass\n",
			want:   watchdog.OutcomeOK,
		},
		{
			name:   "returns true",
			source: "def check(subject):\n    return True\n",
			want:   watchdog.OutcomeOK,
		},
		{
			name:    "returns false",
			source:  "def check(subject):\n    return False\n",
			want:    watchdog.OutcomeFailed,
			errText: "check returned False",
		},
		{
			name:    "returns message",
			source:  "def check(subject):\n    return \"replication lag 40s\"\n",
			want:    watchdog.OutcomeFailed,
			errText: "replication lag 40s",
		},
		{
			name:    "unexpected return",
			source:  "def check(subject):\n    return 3\n",
			want:    watchdog.OutcomeFailed,
			errText: "unexpected int",
		},
		{
			name:   "receives subject",
			source: "def check(subject):\n    if subject != \"db\":\n        failed(\"subject is \" + subject)\n",
			want:   watchdog.OutcomeOK,
		},
		{
			name:    "failed builtin",
			source:  "def check(subject):\n    failed(\"disk full\")\n",
			want:    watchdog.OutcomeFailed,
			errText: "disk full",
		},
		{
			name:    "impossible from helper",
			source:  "def reach():\n    impossible(\"no route\")\n\ndef check(subject):\n    reach()\n",
			want:    watchdog.OutcomeImpossible,
			errText: "no route",
		},
		{
			name:    "runtime error",
			source:  "def check(subject):\n    return 1 // 0\n",
			want:    watchdog.OutcomeFailed,
			errText: "script error",
		},
		{
			name:    "run exit code",
			source:  "def check(subject):\n    r = run(\"sh\", \"-c\", \"echo degraded; exit 2\")\n    if r.code != 0:\n        failed(\"code %d: %s\" % (r.code, r.output.strip()))\n",
			want:    watchdog.OutcomeFailed,
			errText: "code 2: degraded",
		},
		{
			name:    "run missing binary",
			source:  "def check(subject):\n    run(\"/nonexistent/healthcheck\")\n",
			want:    watchdog.OutcomeImpossible,
			errText: "failed to run /nonexistent/healthcheck",
		},
		{
			name:   "http get",
			source: fmt.Sprintf("def check(subject):\n    r = http_get(%q)\n    return r.status == 200 and r.body == \"ready\"\n", server.URL+"/healthz"),
			want:   watchdog.OutcomeOK,
		},
		{
			name:    "http get status",
			source:  fmt.Sprintf("def check(subject):\n    r = http_get(%q)\n    if r.status != 200:\n        failed(\"status %%d\" %% r.status)\n", server.URL+"/missing"),
			want:    watchdog.OutcomeFailed,
			errText: "status 404",
		},
		{
			name:    "http get unreachable",
			source:  fmt.Sprintf("def check(subject):\n    http_get(%q)\n", "http://"+closedAddress(t)+"/"),
			want:    watchdog.OutcomeImpossible,
			errText: "GET http://",
		},
		{
			name:   "top level state",
			source: "LIMITS = struct(max_code = 0)\n\ndef check(subject):\n    return run(\"true\").code <= LIMITS.max_code\n",
			want:   watchdog.OutcomeOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check, err := NewScriptCheck(config.ScriptCheckConfig{Source: tt.source}, testLogger())
			if err != nil {
				t.Fatalf("Failed to load script: %v", err)
			}

			err = check.Check(context.Background(), "db")
			got := watchdog.Classify("db", err)
			if got.Kind != tt.want {
				t.Fatalf("Expected %s, got %s (cause: %v)", tt.want, got.Kind, err)
			}
			if tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestScriptCheck_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.star")
	src := "def check(subject):\n    return run(\"sh\", \"-c\", \"exit 0\").code == 0\n"
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	check, err := NewScriptCheck(config.ScriptCheckConfig{File: path}, testLogger())
	if err != nil {
		t.Fatalf("Failed to load script: %v", err)
	}
	if err := check.Check(context.Background(), nil); err != nil {
		t.Errorf("Expected OK, got %v", err)
	}
}

func TestScriptCheck_Canceled(t *testing.T) {
	src := "def check(subject):\n    for i in range(1000000000):\n        pass\n"
	check, err := NewScriptCheck(config.ScriptCheckConfig{Source: src}, testLogger())
	if err != nil {
		t.Fatalf("Failed to load script: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = check.Check(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Cancellation took %v", elapsed)
	}
}

func TestNewScriptCheck_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ScriptCheckConfig
		wantErr string
	}{
		{name: "missing file", cfg: config.ScriptCheckConfig{File: "/nonexistent/check.star"}, wantErr: "failed to read script"},
		{name: "syntax error", cfg: config.ScriptCheckConfig{Source: "def check(subject)\n"}, wantErr: "failed to load script"},
		{name: "no check function", cfg: config.ScriptCheckConfig{Source: "x = 1\n"}, wantErr: "must define check(subject)"},
		{name: "check not callable", cfg: config.ScriptCheckConfig{Source: "check = 1\n"}, wantErr: "must define check(subject)"},
		{name: "wrong arity", cfg: config.ScriptCheckConfig{Source: "def check():\n    pass\n"}, wantErr: "exactly one parameter"},
		{name: "top level failure", cfg: config.ScriptCheckConfig{Source: "failed(\"boom\")\n"}, wantErr: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScriptCheck(tt.cfg, testLogger())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
