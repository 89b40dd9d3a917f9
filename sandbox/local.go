package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LocalRunner implements Runner by executing the code directly on the
// host interpreter. It enforces the wall-clock deadline and the output
// caps but provides no memory, network, or filesystem isolation, so it is
// only usable when explicitly enabled for development.
type LocalRunner struct {
	logger    *zap.Logger
	cmdRunner CommandRunner
}

// LocalRunnerOption defines a functional option for LocalRunner.
type LocalRunnerOption func(*LocalRunner)

// WithLocalCommandRunner sets the CommandRunner for LocalRunner.
func WithLocalCommandRunner(cmdRunner CommandRunner) LocalRunnerOption {
	return func(l *LocalRunner) {
		l.cmdRunner = cmdRunner
	}
}

// NewLocalRunner creates a LocalRunner with default implementations and
// optional interfaces.
func NewLocalRunner(logger *zap.Logger, opts ...LocalRunnerOption) *LocalRunner {
	runner := &LocalRunner{
		logger:    logger,
		cmdRunner: &RealCommandRunner{},
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Run executes the provisioned code with the host python3. The process is
// killed by the context when the deadline fires, so no separate teardown
// step is needed on this backend.
func (l *LocalRunner) Run(ctx context.Context, spec Spec) (RawOutcome, error) {
	pol := spec.Policy
	stdout := newCappedBuffer(pol.MaxOutputKB * 1024)
	stderr := newCappedBuffer(pol.MaxOutputKB * 1024)

	runCtx, cancel := context.WithTimeout(ctx, pol.Timeout())
	defer cancel()

	start := time.Now()
	exitCode, err := l.cmdRunner.RunCommand(runCtx, []string{"python3", spec.CodePath}, stdout, stderr)

	raw := RawOutcome{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Duration:        time.Since(start),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		raw.TimedOut = true
		return raw, nil
	case ctx.Err() != nil:
		return raw, ctx.Err()
	case err != nil:
		l.logger.Error("local interpreter unavailable",
			zap.String("run_id", spec.RunID),
			zap.Error(err))
		raw.LaunchFailed = true
		return raw, nil
	}

	raw.ExitCode = exitCode
	if exitCode > 128 {
		raw.Signal = exitCode - 128
	}
	return raw, nil
}
