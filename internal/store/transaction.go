package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/coderelay/statevault/internal/key"
	"github.com/coderelay/statevault/internal/lock"
)

type txState int

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	default:
		return "open"
	}
}

type stagedOp struct {
	key    key.Key
	remove bool
	value  any
}

// Tx stages multi-key operations and applies them all-or-nothing. The
// state machine is Open -> Committed or Open -> RolledBack; both terminal
// states reject any further staging, commit or rollback with
// ErrTxFinalized.
type Tx struct {
	store *Store
	id    string

	mu     sync.Mutex
	state  txState
	staged map[string]stagedOp // canonical relative path -> last staged op
}

// Begin opens a transaction against the store.
func (s *Store) Begin() *Tx {
	return &Tx{
		store:  s,
		id:     uuid.NewString(),
		staged: make(map[string]stagedOp),
	}
}

// ID returns the transaction's identifier, used in logs and errors.
func (tx *Tx) ID() string { return tx.id }

// StageWrite records a pending write for k. The value is not encoded or
// persisted until commit; the last staged operation per key wins.
func (tx *Tx) StageWrite(k key.Key, v any) error {
	return tx.stage(stagedOp{key: k, value: v})
}

// StageRemove records a pending removal of k.
func (tx *Tx) StageRemove(k key.Key) error {
	return tx.stage(stagedOp{key: k, remove: true})
}

func (tx *Tx) stage(op stagedOp) error {
	if len(op.key) == 0 {
		return key.ErrEmptyKey
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != txOpen {
		return fmt.Errorf("%w (%s)", ErrTxFinalized, tx.state)
	}
	tx.staged[op.key.RelPath()] = op
	return nil
}

// Commit applies every staged operation atomically:
//
//  1. the touched resources are sorted by canonical path, establishing the
//     single global lock order shared by all transactions;
//  2. exclusive locks are acquired in that order; on any failure every
//     lock already acquired is released and the transaction stays Open so
//     the caller may retry or roll back;
//  3. every staged payload is validated before any mutation;
//  4. operations are applied through the record store under the held locks;
//  5. locks are released and the transaction becomes Committed.
//
// A mutation failure after validation passed is fatal: the transaction
// becomes terminal and a *PartialCommitError lists what was applied.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != txOpen {
		return fmt.Errorf("%w (%s)", ErrTxFinalized, tx.state)
	}

	paths := make([]string, 0, len(tx.staged))
	for p := range tx.staged {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	handles, err := tx.acquireAll(ctx, paths)
	if err != nil {
		// Transaction remains Open; nothing was locked or applied.
		return err
	}
	release := func() {
		for i := len(handles) - 1; i >= 0; i-- {
			handles[i].Release()
		}
	}

	// Validate every payload before the first mutation.
	encoded := make(map[string][]byte, len(tx.staged))
	for _, p := range paths {
		op := tx.staged[p]
		if op.remove {
			continue
		}
		data, err := tx.store.encode(op.key, op.value)
		if err != nil {
			release()
			return err
		}
		encoded[p] = data
	}

	var applied []string
	for _, p := range paths {
		op := tx.staged[p]
		var err error
		if op.remove {
			err = tx.store.applyRemove(op.key)
		} else {
			err = tx.store.applyWrite(op.key, encoded[p])
		}
		if err != nil {
			release()
			tx.state = txCommitted
			perr := &PartialCommitError{
				Tx:      tx.id,
				Key:     op.key.String(),
				Applied: applied,
				Err:     err,
			}
			tx.store.log.Error("partial commit", "tx", tx.id, "key", op.key.String(), "error", err)
			return perr
		}
		applied = append(applied, op.key.String())
	}

	release()
	tx.state = txCommitted
	tx.store.log.Debug("transaction committed", "tx", tx.id, "ops", len(paths))
	return nil
}

// acquireAll takes exclusive locks over the sorted resource paths. On any
// acquisition failure the locks already acquired are released in reverse
// order and no lock state from this attempt remains.
func (tx *Tx) acquireAll(ctx context.Context, paths []string) ([]*lock.Handle, error) {
	handles := make([]*lock.Handle, 0, len(paths))
	for _, p := range paths {
		resource := tx.staged[p].key.Path(tx.store.root)
		h, err := tx.store.locks.Acquire(ctx, resource, lock.Exclusive, tx.store.cfg.LockTimeout)
		if err != nil {
			for i := len(handles) - 1; i >= 0; i-- {
				handles[i].Release()
			}
			return nil, fmt.Errorf("transaction %s: failed to lock %s: %w", tx.id, p, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Rollback discards every staged operation and finalizes the transaction.
// The terminal state is set before anything else, so a commit racing or
// following a rollback can never apply writes.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != txOpen {
		return fmt.Errorf("%w (%s)", ErrTxFinalized, tx.state)
	}
	tx.state = txRolledBack
	tx.staged = nil
	tx.store.log.Debug("transaction rolled back", "tx", tx.id)
	return nil
}
