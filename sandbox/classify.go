package sandbox

// Status is the closed set of user-meaningful execution outcomes. The
// first three non-success values are faults of the submitted code;
// StatusInternalError is a fault of the infrastructure and is the only
// one a caller could meaningfully escalate.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusTimeout        Status = "timeout"
	StatusMemoryExceeded Status = "memory_exceeded"
	StatusRuntimeError   Status = "runtime_error"
	StatusInternalError  Status = "internal_error"
)

// Outcome is the classified result of one execution, produced exactly
// once per request and immutable after that.
type Outcome struct {
	Status          Status `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
}

const sigKill = 9

// Classify maps a raw process outcome onto a Status. The rules, in
// precedence order:
//
//   - TimedOut wins over everything: forced termination can leave a
//     misleading exit code or signal behind.
//   - LaunchFailed means the engine itself broke, never the code.
//   - A SIGKILL exit (137) is the cgroup OOM kill under a hard memory
//     cap. A non-zero exit with both streams empty is the same event
//     observed through an engine that swallowed the signal.
//   - Any other non-zero exit is the code's own runtime error, with
//     stderr as the diagnostic.
//
// Truncated streams keep their content and flag; truncation never
// changes the status.
func Classify(raw RawOutcome) Outcome {
	out := Outcome{
		Stdout:          raw.Stdout,
		Stderr:          raw.Stderr,
		DurationMs:      raw.Duration.Milliseconds(),
		StdoutTruncated: raw.StdoutTruncated,
		StderrTruncated: raw.StderrTruncated,
	}

	switch {
	case raw.TimedOut:
		out.Status = StatusTimeout
	case raw.LaunchFailed:
		out.Status = StatusInternalError
	case raw.Signal == sigKill,
		raw.ExitCode != 0 && raw.Stdout == "" && raw.Stderr == "":
		exit := raw.ExitCode
		out.ExitCode = &exit
		out.Status = StatusMemoryExceeded
	case raw.ExitCode != 0:
		exit := raw.ExitCode
		out.ExitCode = &exit
		out.Status = StatusRuntimeError
	default:
		exit := raw.ExitCode
		out.ExitCode = &exit
		out.Status = StatusSuccess
	}

	return out
}
