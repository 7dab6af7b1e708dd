package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestRunner_ExitCodeAndStderr(t *testing.T) {
	skipWindows(t)
	var stderr bytes.Buffer
	r := &Runner{Stderr: &stderr}

	res, err := r.Run(context.Background(), Command{
		Argv: []string{"/bin/sh", "-c", "echo 'fatal: no plugin' >&2; exit 3"},
	})
	require.NoError(t, err, "a non-zero exit is a result, not an error")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "fatal: no plugin\n", stderr.String())
	assert.Equal(t, "fatal: no plugin\n", string(res.Stderr))
	assert.False(t, res.TimedOut)
}

func TestRunner_DirAndEnv(t *testing.T) {
	skipWindows(t)
	var stdout bytes.Buffer
	dir := t.TempDir()
	r := &Runner{Stdout: &stdout}

	t.Setenv("ARG_STATES_OUT_DIR", "/parent/value")
	res, err := r.Run(context.Background(), Command{
		Argv: []string{"/bin/sh", "-c", `printf '%s|%s' "$(pwd -P)" "$ARG_STATES_OUT_DIR"`},
		Dir:  dir,
		Env:  map[string]string{"ARG_STATES_OUT_DIR": "/child/value"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved+"|/child/value", stdout.String())
}

func TestRunner_PerCommandStderr(t *testing.T) {
	skipWindows(t)
	var shared, own bytes.Buffer
	r := &Runner{Stderr: &shared}

	_, err := r.Run(context.Background(), Command{
		Argv:   []string{"/bin/sh", "-c", "echo warn >&2"},
		Stderr: &own,
	})
	require.NoError(t, err)
	assert.Empty(t, shared.String())
	assert.Equal(t, "warn\n", own.String())
}

func TestRunner_StartFailure(t *testing.T) {
	r := &Runner{}
	_, err := r.Run(context.Background(), Command{Argv: []string{filepath.Join(t.TempDir(), "missing-clang")}})
	assert.Error(t, err)

	_, err = r.Run(context.Background(), Command{})
	assert.Error(t, err)
}

func TestRunner_Timeout(t *testing.T) {
	skipWindows(t)
	r := &Runner{Timeout: 100 * time.Millisecond}

	res, err := r.Run(context.Background(), Command{Argv: []string{"/bin/sh", "-c", "sleep 10"}})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, res.Duration, 5*time.Second)
}

func TestRunner_Cancelled(t *testing.T) {
	skipWindows(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := (&Runner{}).Run(ctx, Command{Argv: []string{"/bin/sh", "-c", "sleep 10"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", string(tb.Bytes()))
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"PATH=/bin", "HOME=/root"}, map[string]string{"HOME": "/tmp"})
	assert.ElementsMatch(t, []string{"PATH=/bin", "HOME=/tmp"}, got)
}
