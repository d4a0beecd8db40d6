package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coderelay/statevault/internal/key"
	"github.com/coderelay/statevault/internal/lock"
)

func TestCommitAppliesAllStagedOps(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	ctx := context.Background()

	doomed := mustKey(t, "session", "doomed")
	if err := s.Write(ctx, doomed, "old"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	tx := s.Begin()
	if err := tx.StageWrite(mustKey(t, "session", "a"), "va"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	if err := tx.StageWrite(mustKey(t, "auth", "b"), "vb"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	if err := tx.StageRemove(doomed); err != nil {
		t.Fatalf("StageRemove failed: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var out string
	if err := s.Read(ctx, mustKey(t, "session", "a"), &out); err != nil || out != "va" {
		t.Errorf("Read a = %q, %v", out, err)
	}
	if err := s.Read(ctx, mustKey(t, "auth", "b"), &out); err != nil || out != "vb" {
		t.Errorf("Read b = %q, %v", out, err)
	}
	if err := s.Read(ctx, doomed, &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("removed key: error = %v, want %v", err, ErrNotFound)
	}
}

func TestCommitLastStagedOpWins(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	ctx := context.Background()
	k := mustKey(t, "session", "restaged")

	tx := s.Begin()
	if err := tx.StageWrite(k, "first"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	if err := tx.StageWrite(k, "second"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var out string
	if err := s.Read(ctx, k, &out); err != nil || out != "second" {
		t.Errorf("Read = %q, %v, want second", out, err)
	}
}

func TestCommitValidationFailureLeavesNoSideEffects(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	ctx := context.Background()
	good := mustKey(t, "session", "good")

	tx := s.Begin()
	if err := tx.StageWrite(good, "value"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	// A channel cannot be serialized, so validation fails at commit time.
	if err := tx.StageWrite(mustKey(t, "session", "zz-bad"), make(chan int)); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}

	err := tx.Commit(ctx)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Commit error = %v (%T), want *ValidationError", err, err)
	}

	// No staged write may have reached disk, even ones that would have
	// validated fine on their own.
	var out string
	if err := s.Read(ctx, good, &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("valid sibling was applied despite failed validation: %v", err)
	}

	// A validation failure leaves the transaction open for retry.
	if err := tx.StageRemove(mustKey(t, "session", "zz-bad")); err != nil {
		t.Fatalf("restage after failed commit: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("retried commit failed: %v", err)
	}
	if err := s.Read(ctx, good, &out); err != nil || out != "value" {
		t.Errorf("Read after retry = %q, %v", out, err)
	}
}

func TestRollbackThenCommitRejected(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	ctx := context.Background()
	k := mustKey(t, "session", "never")

	tx := s.Begin()
	if err := tx.StageWrite(k, "v"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if err := tx.Commit(ctx); !errors.Is(err, ErrTxFinalized) {
		t.Fatalf("commit after rollback: error = %v, want %v", err, ErrTxFinalized)
	}

	var out string
	if err := s.Read(ctx, k, &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("rolled-back write reached disk: %v", err)
	}
}

func TestFinalizedTransactionRejectsEverything(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	ctx := context.Background()

	tx := s.Begin()
	if err := tx.StageWrite(mustKey(t, "session", "x"), "v"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := tx.StageWrite(mustKey(t, "session", "y"), "v"); !errors.Is(err, ErrTxFinalized) {
		t.Errorf("stage after commit: error = %v, want %v", err, ErrTxFinalized)
	}
	if err := tx.StageRemove(mustKey(t, "session", "y")); !errors.Is(err, ErrTxFinalized) {
		t.Errorf("stage remove after commit: error = %v, want %v", err, ErrTxFinalized)
	}
	if err := tx.Commit(ctx); !errors.Is(err, ErrTxFinalized) {
		t.Errorf("double commit: error = %v, want %v", err, ErrTxFinalized)
	}
	if err := tx.Rollback(); !errors.Is(err, ErrTxFinalized) {
		t.Errorf("rollback after commit: error = %v, want %v", err, ErrTxFinalized)
	}

	tx2 := s.Begin()
	if err := tx2.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if err := tx2.Rollback(); !errors.Is(err, ErrTxFinalized) {
		t.Errorf("double rollback: error = %v, want %v", err, ErrTxFinalized)
	}
}

func TestStageEmptyKey(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	tx := s.Begin()
	defer tx.Rollback()

	if err := tx.StageWrite(nil, "v"); !errors.Is(err, key.ErrEmptyKey) {
		t.Errorf("error = %v, want %v", err, key.ErrEmptyKey)
	}
}

func TestCommitLockFailureKeepsTransactionOpen(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.LockTimeout = 50 * time.Millisecond
	s := openStore(t, cfg)
	ctx := context.Background()

	contested := mustKey(t, "session", "contested")
	other := mustKey(t, "session", "other")

	h, err := s.locks.Acquire(ctx, contested.Path(cfg.Root), lock.Exclusive, time.Second)
	if err != nil {
		t.Fatalf("setup acquire failed: %v", err)
	}

	tx := s.Begin()
	if err := tx.StageWrite(contested, "mine"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}
	if err := tx.StageWrite(other, "v"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}

	if err := tx.Commit(ctx); err == nil {
		t.Fatal("commit should fail while the resource is held")
	}

	// Nothing was applied and the transaction is still open.
	var out string
	if err := s.Read(ctx, other, &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("sibling write leaked during failed commit: %v", err)
	}

	h.Release()
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit after contention cleared failed: %v", err)
	}
	if err := s.Read(ctx, contested, &out); err != nil || out != "mine" {
		t.Errorf("Read = %q, %v", out, err)
	}
}

func TestConcurrentTransactionsOpposingOrder(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	ctx := context.Background()

	a := mustKey(t, "session", "a")
	b := mustKey(t, "session", "b")

	// Both transactions touch {a, b} but stage them in opposite order. The
	// sorted lock order makes this deadlock-free regardless of scheduling.
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	run := func(first, second key.Key, val string) {
		defer wg.Done()
		tx := s.Begin()
		if err := tx.StageWrite(first, val); err != nil {
			errs <- err
			return
		}
		if err := tx.StageWrite(second, val); err != nil {
			errs <- err
			return
		}
		errs <- tx.Commit(ctx)
	}

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go run(a, b, "forward")
		go run(b, a, "reverse")
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
	}

	// Both keys carry the value of whichever transaction committed last.
	var va, vb string
	if err := s.Read(ctx, a, &va); err != nil {
		t.Fatalf("Read a failed: %v", err)
	}
	if err := s.Read(ctx, b, &vb); err != nil {
		t.Fatalf("Read b failed: %v", err)
	}
	if va != vb {
		t.Errorf("interleaved commits: a = %q, b = %q", va, vb)
	}
}

func TestTransactionIsolationFromSingleKeyOps(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	ctx := context.Background()
	k := mustKey(t, "session", "shared")

	if err := s.Write(ctx, k, "before"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Staging alone takes no locks and publishes nothing.
	tx := s.Begin()
	if err := tx.StageWrite(k, "after"); err != nil {
		t.Fatalf("StageWrite failed: %v", err)
	}

	var out string
	if err := s.Read(ctx, k, &out); err != nil || out != "before" {
		t.Errorf("Read before commit = %q, %v, want before", out, err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := s.Read(ctx, k, &out); err != nil || out != "after" {
		t.Errorf("Read after commit = %q, %v, want after", out, err)
	}
}

func TestTransactionIDsUnique(t *testing.T) {
	s := openStore(t, testConfig(t, ""))
	t1, t2 := s.Begin(), s.Begin()
	if t1.ID() == "" || t1.ID() == t2.ID() {
		t.Errorf("transaction IDs not unique: %q, %q", t1.ID(), t2.ID())
	}
}
