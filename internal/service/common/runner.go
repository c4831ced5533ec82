//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/oshokin/depstage/internal/logger"
)

// Runner executes an external tool and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct {
	// timeout bounds each invocation; zero means no bound beyond the context.
	timeout time.Duration
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithTimeout bounds every invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(r *ExecRunner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// ErrCommandFailed is returned when a tool exits unsuccessfully with output that is not benign.
var ErrCommandFailed = errors.New("command failed")

// NewExecRunner builds a runner.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := new(ExecRunner)
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes name with args in dir and returns stdout and stderr interleaved.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	return cmd.CombinedOutput()
}

// FilterOutput splits output into lines and drops empty lines and lines containing a benign substring.
func FilterOutput(output []byte, benign []string) []string {
	var kept []string

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if containsAny(line, benign) {
			continue
		}

		kept = append(kept, line)
	}

	return kept
}

// RunFiltered runs a tool whose known informational messages must not fail the build.
// Benign lines are dropped. A failed run is fatal unless everything it printed was benign;
// remaining lines of a successful run are logged as warnings.
func RunFiltered(ctx context.Context, runner Runner, benign []string, dir, name string, args ...string) error {
	output, runErr := runner.Run(ctx, dir, name, args...)
	kept := FilterOutput(output, benign)

	if runErr != nil {
		if len(output) > 0 && len(kept) == 0 && ctx.Err() == nil {
			logger.DebugKV(ctx, "Ignoring benign tool failure", "tool", name, "error", runErr)
			return nil
		}

		return fmt.Errorf("%w: %s %s: %w: %s",
			ErrCommandFailed, name, strings.Join(args, " "), runErr, strings.Join(kept, "; "))
	}

	for _, line := range kept {
		logger.WarnKV(ctx, "Tool output", "tool", name, "line", line)
	}

	return nil
}

func containsAny(line string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(line, s) {
			return true
		}
	}

	return false
}
