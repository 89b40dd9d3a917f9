package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CodeFileName is the name the submitted source is materialized under
// inside the scratch directory. The scratch directory is mounted
// read-only at /sandbox inside the container, so the interpreter sees it
// as /sandbox/main.py.
const CodeFileName = "main.py"

// SandboxMountPath is where the scratch directory appears inside the
// container.
const SandboxMountPath = "/sandbox"

// Scratch files must be readable by the unprivileged user the container
// runs as, hence world-readable rather than 0600.
const codeFilePerm = 0o644

// ProvisionError reports a failure to set up the scratch environment for
// an execution. It is a local infrastructure fault, never attributable to
// the submitted code.
type ProvisionError struct {
	RunID string
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %s: %v", e.RunID, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// Provisioner builds per-execution launch specs from the fixed policy.
// It creates exactly one scratch artifact on disk per call and never
// launches anything itself.
type Provisioner struct {
	logger *zap.Logger
	policy Policy
	fs     FileSystem
}

// ProvisionerOption defines a functional option for Provisioner.
type ProvisionerOption func(*Provisioner)

// WithProvisionerFileSystem sets the FileSystem for Provisioner.
func WithProvisionerFileSystem(fs FileSystem) ProvisionerOption {
	return func(p *Provisioner) {
		p.fs = fs
	}
}

// NewProvisioner creates a Provisioner with default implementations and
// optional interfaces.
func NewProvisioner(logger *zap.Logger, policy Policy, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		logger: logger,
		policy: policy,
		fs:     &RealFileSystem{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision materializes the submitted code into a unique scratch
// directory and returns the launch spec for it. The scratch path is
// never reused: uniqueness comes from both the random run ID and the
// MkdirTemp pattern, so concurrent requests cannot collide.
func (p *Provisioner) Provision(code string) (Spec, error) {
	runID := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	scratchDir, err := p.fs.MkdirTemp("", "runbox-"+runID+"-*")
	if err != nil {
		return Spec{}, &ProvisionError{RunID: runID, Err: fmt.Errorf("create scratch dir: %w", err)}
	}

	codePath := filepath.Join(scratchDir, CodeFileName)
	if err := p.fs.WriteFile(codePath, []byte(code), codeFilePerm); err != nil {
		if rmErr := p.fs.RemoveAll(scratchDir); rmErr != nil {
			p.logger.Warn("failed to remove scratch dir after write failure",
				zap.String("path", scratchDir), zap.Error(rmErr))
		}
		return Spec{}, &ProvisionError{RunID: runID, Err: fmt.Errorf("write code file: %w", err)}
	}

	return Spec{
		RunID:         runID,
		ContainerName: "runbox-" + runID,
		ScratchDir:    scratchDir,
		CodePath:      codePath,
		Policy:        p.policy,
	}, nil
}

// Cleanup removes the scratch directory for a spec. Failures are logged
// and swallowed: by the time Cleanup runs the code's behavior has already
// been fully observed, so a stuck scratch file must not fail the outcome.
func (p *Provisioner) Cleanup(spec Spec) {
	if spec.ScratchDir == "" {
		return
	}
	if err := p.fs.RemoveAll(spec.ScratchDir); err != nil {
		p.logger.Error("failed to remove scratch dir",
			zap.String("run_id", spec.RunID),
			zap.String("path", spec.ScratchDir),
			zap.Error(err))
	}
}
