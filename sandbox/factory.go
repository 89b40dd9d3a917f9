package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nkoval/runbox/config"
)

// PolicyFromConfig maps the sandbox section of the application
// configuration onto the immutable execution policy.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Image:              cfg.Sandbox.Image,
		TimeoutSec:         cfg.Sandbox.TimeoutSec,
		MemoryMB:           cfg.Sandbox.MemoryMB,
		PidsLimit:          cfg.Sandbox.PidsLimit,
		CPUShares:          cfg.Sandbox.CPUShares,
		MaxOutputKB:        cfg.Sandbox.MaxOutputKB,
		NetworkEnabled:     cfg.Sandbox.NetworkEnabled,
		FilesystemWritable: cfg.Sandbox.FilesystemWritable,
	}
}

// NewRunner creates the sandbox runner for the configured backend.
func NewRunner(logger *zap.Logger, cfg *config.Config) (Runner, error) {
	switch cfg.Sandbox.Backend {
	case "docker":
		return NewDockerRunner(logger), nil
	case "podman":
		return NewPodmanRunner(logger), nil
	case "local":
		if !cfg.Sandbox.EnableLocalBackend {
			return nil, fmt.Errorf("local backend is not enabled")
		}
		logger.Warn("using local backend: code runs unisolated on the host")
		return NewLocalRunner(logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}

// NewProvisionerFromConfig creates the provisioner for the configured
// policy.
func NewProvisionerFromConfig(logger *zap.Logger, cfg *config.Config) *Provisioner {
	return NewProvisioner(logger, PolicyFromConfig(cfg))
}
