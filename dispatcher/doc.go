// Package dispatcher accepts untrusted code and returns classified
// execution outcomes.
//
// The dispatcher is the single inbound interface of the service: a
// transport hands it a code string and receives a sandbox.Outcome. It
// validates the request before anything touches disk, bounds the number
// of concurrently running sandboxes with an explicit admission policy
// (queue with a wait bound, or immediate rejection), and journals every
// completed execution.
//
// Errors returned by Execute are never code-attributable: a
// *ValidationError means the request was malformed, ErrOverloaded means
// admission failed, a *sandbox.ProvisionError means local setup broke.
// Everything the code itself did, including crashing, looping forever,
// or exhausting its memory cap, comes back as an Outcome with a nil
// error.
package dispatcher
