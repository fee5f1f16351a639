// Package apperr defines the error taxonomy shared across the engine.
// Callers classify failures with errors.Is against these sentinels rather
// than type-switching on named exception types.
package apperr

import "errors"

var (
	// NotFound: feature id, worktree, session, or file missing.
	NotFound = errors.New("not found")
	// Invalid: malformed record, bad status transition, disallowed path.
	Invalid = errors.New("invalid")
	// Conflict: singleton already running, worktree exists on another branch.
	Conflict = errors.New("conflict")
	// External: VCS invocation failed, agent CLI missing/unauthenticated, subprocess crash.
	External = errors.New("external failure")
	// Cancelled: user- or supervisor-triggered abort.
	Cancelled = errors.New("cancelled")
	// IO: underlying disk/transport failure.
	IO = errors.New("io failure")
)

// Wrap annotates err with msg while keeping it matchable via errors.Is(err, kind).
func Wrap(kind error, msg string, cause error) error {
	if cause == nil {
		return &wrapped{kind: kind, msg: msg}
	}
	return &wrapped{kind: kind, msg: msg + ": " + cause.Error(), cause: cause}
}

type wrapped struct {
	kind  error
	msg   string
	cause error
}

func (w *wrapped) Error() string { return w.msg }

func (w *wrapped) Is(target error) bool { return target == w.kind }

func (w *wrapped) Unwrap() error { return w.cause }
