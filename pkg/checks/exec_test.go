package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
)

func TestExecCheck(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.ExecCheckConfig
		want    watchdog.OutcomeKind
		errText string
	}{
		{
			name: "success",
			cfg:  config.ExecCheckConfig{Command: "sh", Args: []string{"-c", "exit 0"}},
			want: watchdog.OutcomeOK,
		},
		{
			name:    "nonzero exit",
			cfg:     config.ExecCheckConfig{Command: "sh", Args: []string{"-c", "echo disk full >&2; exit 3"}},
			want:    watchdog.OutcomeFailed,
			errText: "code 3: disk full",
		},
		{
			name: "env and dir",
			cfg: config.ExecCheckConfig{
				Command: "sh",
				Args:    []string{"-c", `test "$PROBE" = yes && test "$(pwd)" = "` + dir + `"`},
				Dir:     dir,
				Env:     []string{"PROBE=yes"},
			},
			want: watchdog.OutcomeOK,
		},
		{
			name:    "missing binary",
			cfg:     config.ExecCheckConfig{Command: "/nonexistent/probe"},
			want:    watchdog.OutcomeImpossible,
			errText: "failed to run command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewExecCheck(tt.cfg, testLogger())

			err := check.Check(context.Background(), nil)
			got := watchdog.Classify(nil, err)
			if got.Kind != tt.want {
				t.Fatalf("Expected %s, got %s (cause: %v)", tt.want, got.Kind, err)
			}
			if tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestExecCheck_Timeout(t *testing.T) {
	check := NewExecCheck(config.ExecCheckConfig{Command: "sleep", Args: []string{"5"}}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := check.Check(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
}
