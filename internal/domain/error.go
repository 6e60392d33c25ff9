package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrVersionConflict is returned by the state store when the stored
	// conversation version moved between load and commit. The caller reloads
	// and re-runs the handler.
	ErrVersionConflict = errors.New("conversation version conflict")

	// ErrTransientSource marks network/5xx failures while pulling updates.
	// Retried with backoff, never fatal.
	ErrTransientSource = errors.New("transient update source failure")

	// ErrAuth marks rejected platform credentials. Fatal at startup.
	ErrAuth = errors.New("platform authentication failed")

	// ErrSchema marks a missing or dirty database schema. The process must not
	// run against an unmigrated database.
	ErrSchema = errors.New("database schema not migrated")

	// ErrDeliveryFailed is the terminal per-message status after the retry
	// budget is exhausted. Recorded, not thrown.
	ErrDeliveryFailed = errors.New("outbound delivery failed")

	// ErrQueueClosed and ErrQueueFull report the state of in-process queues
	// (the worker pool lanes, the sender intake). Never fatal: refused work
	// is re-polled or reconciled from durable state.
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")

	ErrUnknownState = errors.New("unknown conversation state")

	ErrInvalidExecContext = errors.New("invalid executor context")
)
