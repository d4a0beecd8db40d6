package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Read for a key that was never written or
	// has been removed. Part of normal control flow, not exceptional.
	ErrNotFound = errors.New("record not found")

	// ErrTxFinalized is returned when commit, rollback or staging is
	// attempted on a transaction that already reached a terminal state.
	ErrTxFinalized = errors.New("transaction already finalized")

	// ErrRecordTooLarge is returned before any I/O when an encoded record
	// exceeds the configured maximum size.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")

	// ErrNoMasterKey is returned by MigrateToEncrypted when no master key
	// is configured.
	ErrNoMasterKey = errors.New("migration requires a configured master key")
)

// ValidationError reports a record that was rejected before any I/O:
// unserializable value or oversized payload.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %s: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PartialCommitError reports a mutation that failed after every staged
// payload had already passed validation (e.g. disk full mid-apply). The
// store does not undo the writes listed in Applied; the error exists so
// the condition is surfaced loudly instead of being swallowed.
type PartialCommitError struct {
	Tx      string
	Key     string
	Applied []string
	Err     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("transaction %s partially committed: applying %s failed after %d mutation(s) [%s]: %v",
		e.Tx, e.Key, len(e.Applied), strings.Join(e.Applied, ", "), e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }
