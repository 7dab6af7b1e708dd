// Package runner executes a built compiler invocation as a child process.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Command is one child process to run.
type Command struct {
	Argv []string
	Dir  string
	Env  map[string]string // added on top of the parent environment

	// Stderr replaces the runner's diagnostic writer for this command.
	Stderr io.Writer
}

// Result reports how the child ended. ExitCode only says the process
// completed; the plugin reports findings through files.
type Result struct {
	ExitCode int
	Duration time.Duration
	TimedOut bool
	Stderr   []byte // tail of the diagnostic stream
}

// Runner forwards the child's stdout and stderr to its writers.
type Runner struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration // zero means wait forever
}

const stderrTail = 8 * 1024

// New returns a runner forwarding to the process's own streams.
func New(timeout time.Duration) *Runner {
	return &Runner{Stdout: os.Stdout, Stderr: os.Stderr, Timeout: timeout}
}

// Run blocks until the child exits. A non-zero exit is not an error; an
// error means the process could not be started or was cancelled.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	if len(c.Argv) == 0 {
		return nil, errors.New("runner: empty argv")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	// Own process group so cancellation reaches the compiler's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	tail := &tailBuffer{max: stderrTail}
	cmd.Stdout = writerOr(r.Stdout)
	stderr := writerOr(r.Stderr)
	if c.Stderr != nil {
		stderr = c.Stderr
	}
	cmd.Stderr = io.MultiWriter(stderr, tail)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Result{ExitCode: -1, Duration: time.Since(start), TimedOut: true, Stderr: tail.Bytes()}, nil
		}
		return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
	case err = <-done:
	}

	res := &Result{Duration: time.Since(start), Stderr: tail.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute %s: %w", c.Argv[0], err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// mergeEnv overrides or appends extra on top of base.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, overridden := extra[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) Bytes() []byte {
	return append([]byte(nil), t.buf.Bytes()...)
}
