package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nkoval/runbox/config"
	"github.com/nkoval/runbox/journal"
	"github.com/nkoval/runbox/sandbox"
)

// ErrOverloaded is returned when the admission bound is reached and the
// request cannot be admitted within the configured policy.
var ErrOverloaded = errors.New("dispatcher: too many concurrent executions")

// ErrClosed is returned for requests that arrive after shutdown began.
var ErrClosed = errors.New("dispatcher: shutting down")

// ValidationError reports input rejected before any sandbox was
// provisioned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// Dispatcher is the public entry point for sandboxed execution. It
// validates input, bounds the number of concurrently running sandboxes,
// and drives each admitted request through provision, run, and classify.
type Dispatcher struct {
	logger      *zap.Logger
	provisioner *sandbox.Provisioner
	runner      sandbox.Runner
	store       journal.Store

	admissionMode string
	queueWait     time.Duration
	maxCodeBytes  int

	slots chan struct{}

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

// New creates a Dispatcher from the application configuration.
func New(cfg *config.Config, logger *zap.Logger, provisioner *sandbox.Provisioner, runner sandbox.Runner, store journal.Store) *Dispatcher {
	return &Dispatcher{
		logger:        logger,
		provisioner:   provisioner,
		runner:        runner,
		store:         store,
		admissionMode: cfg.Dispatcher.AdmissionMode,
		queueWait:     cfg.GetQueueWait(),
		maxCodeBytes:  cfg.Dispatcher.MaxCodeBytes,
		slots:         make(chan struct{}, cfg.Dispatcher.MaxConcurrent),
	}
}

// Execute runs one piece of untrusted code through the sandbox and
// returns its classified outcome. Outcomes attributable to the code
// (success, timeout, memory exceeded, runtime error) are returned with a
// nil error; a non-nil error always means the request itself was bad or
// the infrastructure failed before an outcome could be observed.
func (d *Dispatcher) Execute(ctx context.Context, code string) (sandbox.Outcome, error) {
	if code == "" {
		return sandbox.Outcome{}, &ValidationError{Reason: "code must not be empty"}
	}
	if len(code) > d.maxCodeBytes {
		return sandbox.Outcome{}, &ValidationError{
			Reason: fmt.Sprintf("code exceeds %d bytes", d.maxCodeBytes),
		}
	}

	if err := d.admit(ctx); err != nil {
		return sandbox.Outcome{}, err
	}
	defer d.release()

	requestID := uuid.NewString()
	logger := d.logger.With(zap.String("request_id", requestID))

	spec, err := d.provisioner.Provision(code)
	if err != nil {
		logger.Error("provisioning failed", zap.Error(err))
		return sandbox.Outcome{}, err
	}
	defer d.provisioner.Cleanup(spec)

	logger.Info("execution admitted",
		zap.String("run_id", spec.RunID),
		zap.Int("code_bytes", len(code)))

	raw, err := d.runner.Run(ctx, spec)
	if err != nil {
		logger.Warn("execution aborted", zap.Error(err))
		return sandbox.Outcome{}, err
	}

	outcome := sandbox.Classify(raw)

	logger.Info("execution completed",
		zap.String("status", string(outcome.Status)),
		zap.Int64("duration_ms", outcome.DurationMs),
		zap.Bool("stdout_truncated", outcome.StdoutTruncated),
		zap.Bool("stderr_truncated", outcome.StderrTruncated))

	d.record(requestID, outcome)
	return outcome, nil
}

// admit acquires an execution slot according to the admission policy.
// In reject mode a full dispatcher fails immediately; in queue mode the
// request waits up to the configured bound. Context cancellation is
// honored in both modes so a disconnected caller never occupies the
// queue.
func (d *Dispatcher) admit(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.running.Add(1)
	d.mu.Unlock()

	admitted := false
	defer func() {
		if !admitted {
			d.running.Done()
		}
	}()

	switch d.admissionMode {
	case "reject":
		select {
		case d.slots <- struct{}{}:
			admitted = true
			return nil
		default:
			return ErrOverloaded
		}
	default: // queue
		timer := time.NewTimer(d.queueWait)
		defer timer.Stop()
		select {
		case d.slots <- struct{}{}:
			admitted = true
			return nil
		case <-timer.C:
			return ErrOverloaded
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) release() {
	<-d.slots
	d.running.Done()
}

// record appends the execution to the journal. Journal failures are
// logged and dropped: the outcome is already fully observed and must not
// be failed retroactively.
func (d *Dispatcher) record(requestID string, outcome sandbox.Outcome) {
	rec := journal.Record{
		RequestID:   requestID,
		Status:      string(outcome.Status),
		ExitCode:    outcome.ExitCode,
		DurationMs:  outcome.DurationMs,
		StdoutBytes: len(outcome.Stdout),
		StderrBytes: len(outcome.Stderr),
		Truncated:   outcome.StdoutTruncated || outcome.StderrTruncated,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.store.Append(ctx, rec); err != nil {
		d.logger.Error("failed to journal execution",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// History returns recent execution records from the journal.
func (d *Dispatcher) History(ctx context.Context, f journal.Filter) ([]journal.Record, error) {
	return d.store.Recent(ctx, f)
}

// Close stops admitting new requests and waits for in-flight executions
// to finish. Their sandboxes are torn down by their own Run calls.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.running.Wait()
	return nil
}
