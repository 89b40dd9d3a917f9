package sandbox

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockCommandRunner implements CommandRunner for testing. Removal
// commands always succeed; run commands behave per the configured fields.
type mockCommandRunner struct {
	mu    sync.Mutex
	calls [][]string

	stdout     string
	stderr     string
	exitCode   int
	err        error
	blockOnRun bool // write stdout, then block until the context is done
}

func (m *mockCommandRunner) RunCommand(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()

	if len(args) > 1 && args[1] == "rm" {
		return 0, nil
	}

	io.WriteString(stdout, m.stdout)
	io.WriteString(stderr, m.stderr)

	if m.blockOnRun {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	return m.exitCode, m.err
}

func (m *mockCommandRunner) recorded() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

func testSpec(pol Policy) Spec {
	return Spec{
		RunID:         "abc123def456",
		ContainerName: "runbox-abc123def456",
		ScratchDir:    "/tmp/runbox-abc123def456-x",
		CodePath:      "/tmp/runbox-abc123def456-x/main.py",
		Policy:        pol,
	}
}

func hasFlagPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestDockerRunnerArgs(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("IsolationFlags", func(t *testing.T) {
		mock := &mockCommandRunner{}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))
		spec := testSpec(testPolicy())

		_, err := runner.Run(context.Background(), spec)
		require.NoError(t, err)

		calls := mock.recorded()
		require.Len(t, calls, 1)
		args := calls[0]

		assert.Equal(t, "docker", args[0])
		assert.Equal(t, "run", args[1])
		assert.Contains(t, args, "--rm")
		assert.Contains(t, args, "--read-only")
		assert.True(t, hasFlagPair(args, "--network", "none"))
		assert.True(t, hasFlagPair(args, "--memory", "128m"))
		assert.True(t, hasFlagPair(args, "--pids-limit", "64"))
		assert.True(t, hasFlagPair(args, "--cap-drop", "ALL"))
		assert.True(t, hasFlagPair(args, "--security-opt", "no-new-privileges"))
		assert.True(t, hasFlagPair(args, "--name", spec.ContainerName))
		assert.True(t, hasFlagPair(args, "-v", spec.ScratchDir+":/sandbox:ro"))

		// Image and interpreter command come last.
		assert.Equal(t, []string{"python:3.11-slim", "python", "/sandbox/main.py"}, args[len(args)-3:])
	})

	t.Run("NetworkEnabled", func(t *testing.T) {
		mock := &mockCommandRunner{}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))
		pol := testPolicy()
		pol.NetworkEnabled = true

		_, err := runner.Run(context.Background(), testSpec(pol))
		require.NoError(t, err)

		args := mock.recorded()[0]
		assert.True(t, hasFlagPair(args, "--network", "bridge"))
	})

	t.Run("WritableFilesystem", func(t *testing.T) {
		mock := &mockCommandRunner{}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))
		pol := testPolicy()
		pol.FilesystemWritable = true

		_, err := runner.Run(context.Background(), testSpec(pol))
		require.NoError(t, err)

		assert.NotContains(t, mock.recorded()[0], "--read-only")
	})

	t.Run("CPUShares", func(t *testing.T) {
		mock := &mockCommandRunner{}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))
		pol := testPolicy()
		pol.CPUShares = 512

		_, err := runner.Run(context.Background(), testSpec(pol))
		require.NoError(t, err)

		assert.True(t, hasFlagPair(mock.recorded()[0], "--cpu-shares", "512"))
	})
}

func TestDockerRunnerRun(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("NormalExit", func(t *testing.T) {
		mock := &mockCommandRunner{stdout: "Hello World\n"}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))

		raw, err := runner.Run(context.Background(), testSpec(testPolicy()))
		require.NoError(t, err)

		assert.Equal(t, 0, raw.ExitCode)
		assert.Equal(t, "Hello World\n", raw.Stdout)
		assert.False(t, raw.TimedOut)
		assert.False(t, raw.LaunchFailed)
		assert.Positive(t, raw.Duration)
	})

	t.Run("RuntimeError", func(t *testing.T) {
		mock := &mockCommandRunner{stderr: "NameError: name 'x' is not defined\n", exitCode: 1}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))

		raw, err := runner.Run(context.Background(), testSpec(testPolicy()))
		require.NoError(t, err)

		assert.Equal(t, 1, raw.ExitCode)
		assert.Contains(t, raw.Stderr, "NameError")
	})

	t.Run("KillSignalDerived", func(t *testing.T) {
		mock := &mockCommandRunner{exitCode: 137}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))

		raw, err := runner.Run(context.Background(), testSpec(testPolicy()))
		require.NoError(t, err)

		assert.Equal(t, 137, raw.ExitCode)
		assert.Equal(t, 9, raw.Signal)
	})

	t.Run("TimeoutForceRemovesContainer", func(t *testing.T) {
		mock := &mockCommandRunner{stdout: "partial", blockOnRun: true}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))
		pol := testPolicy()
		pol.TimeoutSec = 1
		spec := testSpec(pol)

		start := time.Now()
		raw, err := runner.Run(context.Background(), spec)
		require.NoError(t, err)

		assert.True(t, raw.TimedOut)
		assert.Equal(t, "partial", raw.Stdout, "partial output is preserved on timeout")
		assert.WithinDuration(t, start.Add(time.Second), start.Add(raw.Duration), 500*time.Millisecond)

		calls := mock.recorded()
		require.Len(t, calls, 2)
		assert.Equal(t, []string{"docker", "rm", "-f", spec.ContainerName}, calls[1])
	})

	t.Run("CallerCancellationStillCleansUp", func(t *testing.T) {
		mock := &mockCommandRunner{blockOnRun: true}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))
		spec := testSpec(testPolicy())

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := runner.Run(ctx, spec)
		require.ErrorIs(t, err, context.Canceled)

		calls := mock.recorded()
		require.Len(t, calls, 2)
		assert.Equal(t, []string{"docker", "rm", "-f", spec.ContainerName}, calls[1])
	})

	t.Run("EngineUnreachable", func(t *testing.T) {
		mock := &mockCommandRunner{err: errors.New(`exec: "docker": executable file not found in $PATH`)}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))

		raw, err := runner.Run(context.Background(), testSpec(testPolicy()))
		require.NoError(t, err)

		assert.True(t, raw.LaunchFailed)
	})

	t.Run("EngineExitCodesAreLaunchFailures", func(t *testing.T) {
		for _, code := range []int{125, 126, 127} {
			mock := &mockCommandRunner{exitCode: code, stderr: "docker: error response from daemon"}
			runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))

			raw, err := runner.Run(context.Background(), testSpec(testPolicy()))
			require.NoError(t, err)
			assert.True(t, raw.LaunchFailed, "exit %d must be attributed to the engine", code)
		}
	})

	t.Run("OutputTruncation", func(t *testing.T) {
		big := make([]byte, 8192)
		for i := range big {
			big[i] = 'a'
		}
		mock := &mockCommandRunner{stdout: string(big)}
		runner := NewDockerRunner(logger, WithDockerCommandRunner(mock))
		pol := testPolicy()
		pol.MaxOutputKB = 1

		raw, err := runner.Run(context.Background(), testSpec(pol))
		require.NoError(t, err)

		assert.Len(t, raw.Stdout, 1024)
		assert.True(t, raw.StdoutTruncated)
		assert.False(t, raw.StderrTruncated)
	})
}

func TestPodmanRunnerUsesPodmanBinary(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mock := &mockCommandRunner{}
	runner := NewPodmanRunner(logger, WithPodmanCommandRunner(mock))

	_, err := runner.Run(context.Background(), testSpec(testPolicy()))
	require.NoError(t, err)

	args := mock.recorded()[0]
	assert.Equal(t, "podman", args[0])
	assert.True(t, hasFlagPair(args, "--network", "none"))
}
