package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// defaultSSHTimeout bounds connection setup when the check has no deadline.
const defaultSSHTimeout = 30 * time.Second

// SSHCheck connects to a remote host, optionally runs a command and verifies
// that a set of remote paths exist over SFTP.
type SSHCheck struct {
	address string
	command string
	paths   []string
	client  *ssh.ClientConfig
	logger  zerolog.Logger
}

// NewSSHCheck creates an SSH check. Credentials and host keys are loaded
// once, so a missing key file is reported here rather than on every check.
func NewSSHCheck(cfg config.SSHCheckConfig, logger zerolog.Logger) (*SSHCheck, error) {
	if cfg.Command == "" && len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("ssh check needs a command or paths")
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	clientConfig, err := buildSSHClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	return &SSHCheck{
		address: address,
		command: cfg.Command,
		paths:   cfg.Paths,
		client:  clientConfig,
		logger:  logger.With().Str("check", "ssh").Str("address", address).Logger(),
	}, nil
}

// buildSSHClientConfig creates an ssh.ClientConfig from the check settings.
func buildSSHClientConfig(cfg config.SSHCheckConfig) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if cfg.KeyFile != "" {
		keyBytes, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		password := cfg.Password
		authMethods = append(authMethods,
			ssh.Password(password),
			// Many servers only offer keyboard-interactive for password prompts.
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("ssh check needs a password or key_file")
	}

	var hostKeyCallback ssh.HostKeyCallback
	switch {
	case cfg.InsecureIgnoreHostKey:
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // explicit opt-in
	default:
		path := cfg.KnownHostsFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
			}
			path = home + "/.ssh/known_hosts"
		}
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         defaultSSHTimeout,
	}, nil
}

// Check implements watchdog.Checker. Connection and authentication problems
// are impossible outcomes; a nonzero exit status or a missing path is a failure.
func (c *SSHCheck) Check(ctx context.Context, _ any) error {
	client, err := c.connect(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("connect aborted: %w", ctxErr)
		}
		return watchdog.NewImpossibleError("ssh connect failed", err)
	}
	defer client.Close()

	// Closing the client unblocks a session or SFTP call when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if c.command != "" {
		if err := c.execute(ctx, client); err != nil {
			return err
		}
	}

	if len(c.paths) > 0 {
		if err := c.statPaths(ctx, client); err != nil {
			return err
		}
	}

	return nil
}

// connect dials the host and performs the SSH handshake within ctx.
func (c *SSHCheck) connect(ctx context.Context) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSSHTimeout)
	}
	_ = conn.SetDeadline(deadline)

	ncc, chans, reqs, err := ssh.NewClientConn(conn, c.address, c.client)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	c.logger.Debug().Msg("SSH connection established")
	return ssh.NewClient(ncc, chans, reqs), nil
}

// execute runs the configured command in a new session.
func (c *SSHCheck) execute(ctx context.Context, client *ssh.Client) error {
	session, err := client.NewSession()
	if err != nil {
		return c.sessionError(ctx, "failed to create session", err)
	}
	defer session.Close()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	start := time.Now()
	err = session.Run(c.command)

	c.logger.Debug().
		Str("command", c.command).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("Command completed")

	if err == nil {
		return nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return watchdog.NewFailedError(
			fmt.Sprintf("remote command exited with code %d: %s", exitErr.ExitStatus(), tail(output.String())), err)
	}
	return c.sessionError(ctx, "remote command did not complete", err)
}

// statPaths verifies that every configured path exists on the remote host.
func (c *SSHCheck) statPaths(ctx context.Context, client *ssh.Client) error {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return c.sessionError(ctx, "failed to create SFTP client", err)
	}
	defer sftpClient.Close()

	var missing []string
	for _, path := range c.paths {
		if _, err := sftpClient.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				missing = append(missing, path)
				continue
			}
			return c.sessionError(ctx, fmt.Sprintf("failed to stat %s", path), err)
		}
	}

	if len(missing) > 0 {
		return watchdog.NewFailedError("missing remote paths: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func (c *SSHCheck) sessionError(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msg, ctxErr)
	}
	return watchdog.NewImpossibleError(msg, err)
}
