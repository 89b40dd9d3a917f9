// Package sandbox provides isolated execution of untrusted code.
//
// The package is built from three cooperating pieces. The Provisioner
// materializes submitted code into a per-request scratch directory and
// produces the launch Spec. A Runner launches exactly one isolated
// process per Spec, enforces the wall-clock deadline, captures bounded
// stdout/stderr, and tears the sandbox down on every exit path. Classify
// maps the raw process outcome onto a closed set of statuses so that
// faults of the submitted code are never confused with faults of the
// infrastructure.
//
// Docker is the primary backend; Podman is supported as a drop-in
// replacement and a local backend exists for development on hosts
// without a container engine.
//
// Usage:
//
//	runner, err := sandbox.NewRunner(logger, cfg)
//	prov := sandbox.NewProvisioner(logger, policy)
//	spec, err := prov.Provision(code)
//	defer prov.Cleanup(spec)
//	raw, err := runner.Run(ctx, spec)
//	outcome := sandbox.Classify(raw)
package sandbox
