// Package qcli shells out to the Amazon Q CLI for the question kinds that
// are answered conversationally rather than by a fixed pipeline.
package qcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
)

// ErrExecutionTimeout reports a CLI call that outran its deadline.
var ErrExecutionTimeout = errors.New("qcli: execution timed out")

// Runner invokes the CLI non-interactively with session credentials in the
// environment. The CLI itself decides which AWS calls to make.
type Runner struct {
	binary  string
	timeout time.Duration
	logger  zerolog.Logger
	run     func(ctx context.Context, cmd *exec.Cmd) error
}

// NewRunner creates a runner for the given binary ("q" in production).
func NewRunner(binary string, timeout time.Duration, logger zerolog.Logger) *Runner {
	return &Runner{
		binary:  binary,
		timeout: timeout,
		logger:  logger,
		run:     func(_ context.Context, cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// Ask sends one prompt and returns the CLI's full stdout.
func (r *Runner) Ask(ctx context.Context, creds awsx.SessionCredentials, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, "chat", "--no-interactive", "--trust-all-tools")
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = os.Environ()
	// Account-less questions run on the CLI's own ambient identity.
	if creds.AccessKeyID != "" {
		cmd.Env = append(cmd.Env,
			"AWS_ACCESS_KEY_ID="+creds.AccessKeyID,
			"AWS_SECRET_ACCESS_KEY="+creds.SecretAccessKey,
			"AWS_SESSION_TOKEN="+creds.SessionToken,
			"AWS_DEFAULT_REGION="+creds.Region,
		)
	}

	start := time.Now()
	err := r.run(ctx, cmd)
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: after %s", ErrExecutionTimeout, r.timeout)
	}
	if err != nil {
		return "", fmt.Errorf("qcli: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	r.logger.Debug().Dur("elapsed", time.Since(start)).Int("output_bytes", stdout.Len()).Msg("qcli call finished")
	return strings.TrimSpace(stdout.String()), nil
}
