package sandbox

import "go.uber.org/zap"

// PodmanRunner implements Runner using the Podman CLI. Podman accepts the
// same run flags this package uses for Docker, so it shares the container
// runner wholesale and only swaps the binary.
type PodmanRunner struct {
	containerRunner
}

// PodmanRunnerOption defines a functional option for PodmanRunner.
type PodmanRunnerOption func(*PodmanRunner)

// WithPodmanCommandRunner sets the CommandRunner for PodmanRunner.
func WithPodmanCommandRunner(cmdRunner CommandRunner) PodmanRunnerOption {
	return func(p *PodmanRunner) {
		p.cmdRunner = cmdRunner
	}
}

// NewPodmanRunner creates a PodmanRunner with default implementations and
// optional interfaces.
func NewPodmanRunner(logger *zap.Logger, opts ...PodmanRunnerOption) *PodmanRunner {
	runner := &PodmanRunner{
		containerRunner: containerRunner{
			logger:    logger,
			binary:    "podman",
			cmdRunner: &RealCommandRunner{},
		},
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}
