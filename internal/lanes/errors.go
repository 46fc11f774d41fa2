package lanes

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("lanes: invalid status transition")
	// ErrStorage wraps transient backend failures; only these are retried.
	ErrStorage = errors.New("lanes: storage error")
	// ErrDuplicate is returned by Submit for a command id already accepted.
	ErrDuplicate = errors.New("lanes: duplicate command")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("lanes: registry closed")
	// ErrFilter is returned for a fetch filter that does not compile.
	ErrFilter = errors.New("lanes: invalid filter")
)
