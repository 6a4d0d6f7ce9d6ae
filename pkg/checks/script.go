package checks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// threadContextKey is the thread-local key holding the check context.
const threadContextKey = "context"

// ScriptCheck runs a Starlark function check(subject) as a health check.
//
// The function passes by returning None or True. Returning False or a string,
// calling fail(msg) or failed(msg), or any runtime error is a failure.
// Calling impossible(msg) reports that the check could not be performed.
// Besides struct, scripts may call:
//
//	run(cmd, *args)  -> struct(code, output)   runs a local command
//	http_get(url)    -> struct(status, body)   performs an HTTP GET
type ScriptCheck struct {
	name   string
	fn     starlark.Callable
	client *http.Client
	logger zerolog.Logger
}

// NewScriptCheck loads and initializes a script. Top-level statements run
// once, here.
func NewScriptCheck(cfg config.ScriptCheckConfig, logger zerolog.Logger) (*ScriptCheck, error) {
	name, src := "check.star", cfg.Source
	if cfg.File != "" {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		name, src = filepath.Base(cfg.File), string(data)
	}

	c := &ScriptCheck{
		name:   name,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With().Str("check", "script").Str("script", name).Logger(),
	}

	globals, err := starlark.ExecFile(c.newThread(context.Background()), name, src, c.predeclared())
	if err != nil {
		return nil, fmt.Errorf("failed to load script %s: %w", name, err)
	}

	fn, ok := globals["check"].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("script %s must define check(subject)", name)
	}
	if fn.NumParams() != 1 {
		return nil, fmt.Errorf("script %s: check must take exactly one parameter, got %d", name, fn.NumParams())
	}
	c.fn = fn

	return c, nil
}

// Check implements watchdog.Checker.
func (c *ScriptCheck) Check(ctx context.Context, subject any) error {
	thread := c.newThread(ctx)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	result, err := starlark.Call(thread, c.fn, starlark.Tuple{toStarlarkSubject(subject)}, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("script aborted: %w", ctxErr)
		}
		var checkErr *watchdog.CheckError
		if errors.As(err, &checkErr) {
			return checkErr
		}
		return watchdog.NewFailedError("script error", err)
	}

	switch v := result.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		if v {
			return nil
		}
		return watchdog.NewFailedError("check returned False", nil)
	case starlark.String:
		return watchdog.NewFailedError(string(v), nil)
	default:
		return watchdog.NewFailedError(fmt.Sprintf("check returned unexpected %s", v.Type()), nil)
	}
}

func (c *ScriptCheck) newThread(ctx context.Context) *starlark.Thread {
	thread := &starlark.Thread{
		Name: c.name,
		Print: func(_ *starlark.Thread, msg string) {
			c.logger.Debug().Str("output", msg).Msg("Script print")
		},
	}
	thread.SetLocal(threadContextKey, ctx)
	return thread
}

func (c *ScriptCheck) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct":     starlark.NewBuiltin("struct", starlarkstruct.Make),
		"failed":     starlark.NewBuiltin("failed", builtinFailed),
		"impossible": starlark.NewBuiltin("impossible", builtinImpossible),
		"run":        starlark.NewBuiltin("run", builtinRun),
		"http_get":   starlark.NewBuiltin("http_get", c.builtinHTTPGet),
	}
}

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(threadContextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func builtinFailed(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	return nil, watchdog.NewFailedError(msg, nil)
}

func builtinImpossible(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	return nil, watchdog.NewImpossibleError(msg, nil)
}

// builtinRun runs a command and returns its exit code and combined output.
// A command that cannot be started makes the check impossible.
func builtinRun(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing command", b.Name())
	}

	argv := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d must be a string, got %s", b.Name(), i, a.Type())
		}
		argv[i] = s
	}

	output, err := exec.CommandContext(threadContext(thread), argv[0], argv[1:]...).CombinedOutput()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, watchdog.NewImpossibleError(fmt.Sprintf("failed to run %s", argv[0]), err)
		}
		code = exitErr.ExitCode()
	}

	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"code":   starlark.MakeInt(code),
		"output": starlark.String(tail(string(output))),
	}), nil
}

// builtinHTTPGet performs a GET request. Transport errors make the check
// impossible; any HTTP status is returned to the script.
func (c *ScriptCheck) builtinHTTPGet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var url string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "url", &url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(threadContext(thread), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, watchdog.NewImpossibleError(fmt.Sprintf("GET %s failed", url), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, watchdog.NewImpossibleError(fmt.Sprintf("GET %s: failed to read body", url), err)
	}

	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"status": starlark.MakeInt(resp.StatusCode),
		"body":   starlark.String(body),
	}), nil
}

func toStarlarkSubject(subject any) starlark.Value {
	switch s := subject.(type) {
	case nil:
		return starlark.None
	case string:
		return starlark.String(s)
	default:
		return starlark.String(fmt.Sprint(s))
	}
}
