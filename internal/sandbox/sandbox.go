// Package sandbox runs untrusted code with a hard wall-clock bound.
//
// ContainerRunner is the production runner: every run gets a fresh
// container with no network, a read-only root, dropped capabilities and
// memory/cpu/pid limits. ProcessRunner executes a plain subprocess and has
// no isolation at all; it exists for tests and local development.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultMaxOutput = 64 * 1024
)

type Result struct {
	Output    string        `json:"output"`
	Truncated bool          `json:"truncated"`
	TimedOut  bool          `json:"timed_out"`
	Duration  time.Duration `json:"-"`
}

// Runner executes source and always returns within its timeout (plus a
// small grace period). Failures are reported in Result.Output.
type Runner interface {
	Run(ctx context.Context, source string) Result
}

// cappedBuffer keeps the first max bytes and silently drops the rest so a
// chatty process never blocks on a full pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

type process struct {
	path      string
	args      []string
	env       []string
	timeout   time.Duration
	maxOutput int
}

func (p process) run(ctx context.Context, source string) Result {
	start := time.Now()
	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := p.maxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, p.path, p.args...)
	cmd.Stdin = strings.NewReader(source)
	cmd.Env = p.env
	// children that keep stdout open must not stall Wait
	cmd.WaitDelay = time.Second

	stdout := &cappedBuffer{max: maxOutput}
	stderr := &cappedBuffer{max: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	res := Result{Duration: time.Since(start)}

	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.Output = fmt.Sprintf("⏱️ Execution timed out after %s", timeout)
		return res
	case ctx.Err() != nil:
		res.Output = "Execution cancelled"
		return res
	}

	out, truncated := stdout.buf.String(), stdout.truncated
	if out == "" {
		out, truncated = stderr.buf.String(), stderr.truncated
	}
	res.Output = out
	res.Truncated = truncated

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.Output = "Execution failed: " + err.Error()
			return res
		}
		if out == "" {
			res.Output = fmt.Sprintf("Process exited with code %d", exitErr.ExitCode())
		}
	}
	return res
}

// ProcessRunner runs source on the stdin of Path. It provides no isolation.
type ProcessRunner struct {
	Path      string
	Args      []string
	Env       []string
	Timeout   time.Duration
	MaxOutput int
}

func (r *ProcessRunner) Run(ctx context.Context, source string) Result {
	return process{
		path:      r.Path,
		args:      r.Args,
		env:       r.Env,
		timeout:   r.Timeout,
		maxOutput: r.MaxOutput,
	}.run(ctx, source)
}
