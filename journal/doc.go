// Package journal records one immutable entry per execution.
//
// The journal stores request metadata only: status, exit code, duration,
// and output sizes. Submitted code and captured output never reach the
// store, which keeps untrusted content out of the persistence layer.
// Writes are best-effort from the dispatcher's point of view; a journal
// failure never fails an already-computed outcome.
package journal
