package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Policy is the process-wide sandbox configuration. It is loaded once at
// startup, shared read-only by all concurrent executions, and never
// mutated.
type Policy struct {
	Image              string
	TimeoutSec         int
	MemoryMB           int
	PidsLimit          int
	CPUShares          int // 0 leaves the engine default
	MaxOutputKB        int // per-stream capture cap
	NetworkEnabled     bool
	FilesystemWritable bool
}

// Timeout returns the wall-clock execution deadline as a duration.
func (p Policy) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

// Spec describes one fully provisioned execution: the identity of the
// sandbox, the scratch artifacts on disk, and the policy the runner must
// enforce. A Spec is owned by exactly one in-flight request.
type Spec struct {
	RunID         string
	ContainerName string
	ScratchDir    string
	CodePath      string
	Policy        Policy
}

// RawOutcome is the unclassified result of one sandboxed process: what
// actually happened at the process level, before any interpretation.
type RawOutcome struct {
	ExitCode        int
	Signal          int // 0 when the process was not signal-killed
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	TimedOut        bool
	LaunchFailed    bool
	Duration        time.Duration
}

// Runner launches one isolated process per Spec. Implementations must
// guarantee that the process and every ephemeral resource it created are
// torn down before Run returns, on every exit path.
type Runner interface {
	Run(ctx context.Context, spec Spec) (RawOutcome, error)
}

// CommandRunner is the seam between the runners and the host: it executes
// a command, streaming output into the supplied writers, and reports the
// exit code. Tests substitute a mock to exercise runner logic without a
// container engine.
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string, stdout, stderr io.Writer) (exitCode int, err error)
}

// RealCommandRunner implements CommandRunner with os/exec.
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments. A non-zero exit
// is reported through the exit code, not the error; the error is reserved
// for failures to run the command at all.
func (RealCommandRunner) RunCommand(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Arguments are built from validated configuration
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 0, err
	}
	return 0, nil
}

// FileSystem abstracts the file system operations the provisioner needs,
// so that provisioning failures can be simulated in tests.
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations.
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// cappedBuffer collects stream output up to a byte limit. Writes past the
// limit are discarded and the truncated flag is set; the writer never
// returns an error so an over-chatty sandbox cannot fail its own capture.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string  { return b.buf.String() }
func (b *cappedBuffer) Truncated() bool { return b.truncated }
