package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Container engine exit codes that mean the engine, not the submitted
// code, failed: 125 is an engine/daemon error, 126 a command that could
// not be invoked, 127 a command that was not found.
const (
	engineExitDaemonError  = 125
	engineExitNotInvokable = 126
	engineExitNotFound     = 127
)

// Grace period for the force-remove call after a timeout or cancellation.
// Kept separate from the execution deadline so cleanup of a wedged engine
// cannot hang the dispatcher.
const engineRemoveTimeout = 12 * time.Second

// containerRunner drives a docker-CLI-compatible container engine. The
// Docker and Podman runners differ only in the binary they invoke.
type containerRunner struct {
	logger    *zap.Logger
	binary    string
	cmdRunner CommandRunner
}

// DockerRunner implements Runner using the Docker CLI.
type DockerRunner struct {
	containerRunner
}

// DockerRunnerOption defines a functional option for DockerRunner.
type DockerRunnerOption func(*DockerRunner)

// WithDockerCommandRunner sets the CommandRunner for DockerRunner.
func WithDockerCommandRunner(cmdRunner CommandRunner) DockerRunnerOption {
	return func(d *DockerRunner) {
		d.cmdRunner = cmdRunner
	}
}

// NewDockerRunner creates a DockerRunner with default implementations and
// optional interfaces.
func NewDockerRunner(logger *zap.Logger, opts ...DockerRunnerOption) *DockerRunner {
	runner := &DockerRunner{
		containerRunner: containerRunner{
			logger:    logger,
			binary:    "docker",
			cmdRunner: &RealCommandRunner{},
		},
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Run launches one isolated container for the given Spec, races its exit
// against the policy deadline, and guarantees the container is gone
// before returning on every path.
func (r *containerRunner) Run(ctx context.Context, spec Spec) (RawOutcome, error) {
	pol := spec.Policy
	stdout := newCappedBuffer(pol.MaxOutputKB * 1024)
	stderr := newCappedBuffer(pol.MaxOutputKB * 1024)

	runCtx, cancel := context.WithTimeout(ctx, pol.Timeout())
	defer cancel()

	start := time.Now()
	exitCode, err := r.cmdRunner.RunCommand(runCtx, r.runArgs(spec), stdout, stderr)

	raw := RawOutcome{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Duration:        time.Since(start),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		// Forced termination can leave a misleading exit code behind, so
		// the deadline is checked before anything else. Partial output
		// captured so far is preserved.
		r.forceRemove(spec.ContainerName)
		raw.TimedOut = true
		return raw, nil

	case ctx.Err() != nil:
		// Caller disconnected or the dispatcher is shutting down. Cleanup
		// is unconditional, not contingent on a well-behaved caller.
		r.forceRemove(spec.ContainerName)
		return raw, ctx.Err()

	case err != nil:
		r.logger.Error("container engine unavailable",
			zap.String("engine", r.binary),
			zap.String("run_id", spec.RunID),
			zap.Error(err))
		raw.LaunchFailed = true
		return raw, nil
	}

	if exitCode == engineExitDaemonError || exitCode == engineExitNotInvokable || exitCode == engineExitNotFound {
		r.logger.Error("container failed to launch",
			zap.String("engine", r.binary),
			zap.String("run_id", spec.RunID),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", raw.Stderr))
		raw.ExitCode = exitCode
		raw.LaunchFailed = true
		return raw, nil
	}

	raw.ExitCode = exitCode
	if exitCode > 128 {
		raw.Signal = exitCode - 128
	}
	return raw, nil
}

// runArgs builds the engine invocation for a spec: isolated network
// namespace, hard memory cap, bounded pid count, read-only rootfs with a
// small tmpfs /tmp, all capabilities dropped, and the scratch directory
// mounted read-only.
func (r *containerRunner) runArgs(spec Spec) []string {
	pol := spec.Policy

	network := "none"
	if pol.NetworkEnabled {
		network = "bridge"
	}

	args := []string{
		r.binary, "run", "--rm",
		"--name", spec.ContainerName,
		"--network", network,
		"--memory", fmt.Sprintf("%dm", pol.MemoryMB),
		"--pids-limit", strconv.Itoa(pol.PidsLimit),
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--tmpfs", "/tmp:rw,size=16m",
		"-v", spec.ScratchDir + ":" + SandboxMountPath + ":ro",
	}
	if !pol.FilesystemWritable {
		args = append(args, "--read-only")
	}
	if pol.CPUShares > 0 {
		args = append(args, "--cpu-shares", strconv.Itoa(pol.CPUShares))
	}

	return append(args, pol.Image, "python", path.Join(SandboxMountPath, CodeFileName))
}

// forceRemove tears down a container that outlived its run command. It
// runs on a fresh context because the caller's context is typically
// already expired at this point.
func (r *containerRunner) forceRemove(containerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), engineRemoveTimeout)
	defer cancel()

	var discard bytes.Buffer
	if _, err := r.cmdRunner.RunCommand(ctx, []string{r.binary, "rm", "-f", containerName}, &discard, &discard); err != nil {
		r.logger.Warn("failed to remove container",
			zap.String("engine", r.binary),
			zap.String("container", containerName),
			zap.Error(err))
	}
}
