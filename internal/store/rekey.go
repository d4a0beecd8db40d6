package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/coderelay/statevault/internal/envelope"
	"github.com/coderelay/statevault/internal/key"
	"github.com/coderelay/statevault/internal/lock"
	"github.com/coderelay/statevault/internal/manifest"
)

// Rekey re-encrypts every record under a new master passphrase with fresh
// KDF parameters. Requires an encrypted store; records still in plaintext
// form are encrypted along the way.
//
// The new parameters are staged in the manifest before any record is
// re-written and promoted to active only after the last one, so a rekey
// interrupted by a crash is repaired by opening with the old passphrase
// and running Rekey again with the same new passphrase: the staged salt is
// reused and the interrupted run's records decrypt under the same derived
// key. Concurrent readers and writers stay functional: new writes seal
// under the new key as soon as the swap happens, and reads fall back to
// the old key for records the sweep has not reached yet.
func (s *Store) Rekey(ctx context.Context, newPassphrase []byte) error {
	if !s.Encrypted() {
		return ErrNoMasterKey
	}
	if len(newPassphrase) == 0 {
		return fmt.Errorf("new passphrase must not be empty")
	}

	salt, iters, err := s.meta.PendingKDF()
	if errors.Is(err, manifest.ErrNoKDF) {
		kdf, kerr := envelope.NewKDF()
		if kerr != nil {
			return kerr
		}
		if err := s.meta.SetPendingKDF(kdf.Salt, uint32(kdf.Iterations)); err != nil {
			return fmt.Errorf("failed to stage kdf parameters: %w", err)
		}
		salt, iters = kdf.Salt, uint32(kdf.Iterations)
	} else if err != nil {
		return err
	}

	kdf := &envelope.KDF{Salt: salt, Iterations: int(iters)}
	newCipher, err := envelope.NewCipher(kdf.DeriveKey(newPassphrase))
	if err != nil {
		return err
	}

	// From here on new writes seal under the new key while reads fall back
	// to the previous codec. A retry after a failed run keeps the original
	// codec as the fallback.
	s.mu.Lock()
	if s.prevCodec == nil {
		s.prevCodec = s.codec
		s.prevCipher = s.cipher
	}
	s.codec = envelope.NewCodec(newCipher)
	s.cipher = newCipher
	s.mu.Unlock()

	keys, err := s.List(ctx, nil)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.rekeyRecord(ctx, k); err != nil {
			return fmt.Errorf("failed to rekey %s: %w", k, err)
		}
	}

	if err := s.meta.PromotePendingKDF(); err != nil {
		return fmt.Errorf("failed to promote kdf parameters: %w", err)
	}

	s.mu.Lock()
	oldCipher := s.prevCipher
	s.prevCodec, s.prevCipher = nil, nil
	s.mu.Unlock()
	if oldCipher != nil {
		oldCipher.Destroy()
	}

	s.log.Info("store rekeyed", "records", len(keys))
	return nil
}

// rekeyRecord re-seals one record under the current codec. Records already
// carrying the new key from an interrupted earlier run open through the
// current codec and are simply re-written.
func (s *Store) rekeyRecord(ctx context.Context, k key.Key) error {
	path := k.Path(s.root)

	h, err := s.locks.Acquire(ctx, path, lock.Exclusive, s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer h.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Removed between listing and locking.
			return nil
		}
		return err
	}

	plain, err := s.openRecord(data)
	if err != nil {
		return err
	}
	return s.applyWrite(k, plain)
}
