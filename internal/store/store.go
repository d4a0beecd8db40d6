package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coderelay/statevault/internal/config"
	"github.com/coderelay/statevault/internal/envelope"
	"github.com/coderelay/statevault/internal/key"
	"github.com/coderelay/statevault/internal/lock"
	"github.com/coderelay/statevault/internal/manifest"
)

const (
	DirPermSecure  = 0700 // Directory: owner rwx only
	DirPerm        = 0755
	FilePermSecure = 0600 // File: owner rw only
	FilePerm       = 0644
)

// Store is the file-backed record store. One record per key, JSON-encoded,
// sealed into an integrity-wrapped (and, with a master key, encrypted)
// envelope, persisted atomically.
type Store struct {
	root  string
	cfg   config.Config
	locks *lock.Manager
	meta  *manifest.DB
	id    string
	log   *slog.Logger

	// mu guards the codec fields, which Rekey swaps while readers and
	// writers are running. prevCodec is non-nil only while a rekey is in
	// flight and lets reads open records not yet re-written.
	mu         sync.RWMutex
	codec      *envelope.Codec
	cipher     *envelope.Cipher
	prevCodec  *envelope.Codec
	prevCipher *envelope.Cipher
}

// Open opens or creates a store rooted at cfg.Root. When a master key is
// configured the encryption key is derived from it using KDF parameters
// persisted in the manifest (created on first use); without one the store
// operates in integrity-wrapped plaintext mode.
func Open(cfg config.Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("store root not configured")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = config.DefaultLockTimeout
	}
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = config.DefaultMaxRecordSize
	}

	if err := os.MkdirAll(cfg.Root, DirPermSecure); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}

	meta, err := manifest.Open(filepath.Join(cfg.Root, manifest.FileName))
	if err != nil {
		return nil, err
	}

	id, err := meta.StoreID()
	if err != nil {
		meta.Close()
		return nil, err
	}

	var cipher *envelope.Cipher
	if len(cfg.MasterKey) > 0 {
		cipher, err = deriveCipher(meta, cfg.MasterKey)
		if err != nil {
			meta.Close()
			return nil, err
		}
	}

	log := cfg.Logger()

	return &Store{
		root:   cfg.Root,
		cfg:    cfg,
		locks:  lock.NewManager(log),
		codec:  envelope.NewCodec(cipher),
		cipher: cipher,
		meta:   meta,
		id:     id,
		log:    log,
	}, nil
}

// deriveCipher derives the AEAD key from the master passphrase, creating
// and persisting KDF parameters the first time a key is configured.
func deriveCipher(meta *manifest.DB, passphrase []byte) (*envelope.Cipher, error) {
	salt, iters, err := meta.KDFParams()
	if errors.Is(err, manifest.ErrNoKDF) {
		kdf, err := envelope.NewKDF()
		if err != nil {
			return nil, err
		}
		if err := meta.SetKDFParams(kdf.Salt, uint32(kdf.Iterations)); err != nil {
			return nil, fmt.Errorf("failed to persist kdf parameters: %w", err)
		}
		salt, iters = kdf.Salt, uint32(kdf.Iterations)
	} else if err != nil {
		return nil, err
	}

	kdf := &envelope.KDF{Salt: salt, Iterations: int(iters)}
	return envelope.NewCipher(kdf.DeriveKey(passphrase))
}

// Close releases the manifest and clears key material from memory.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.cipher != nil {
		s.cipher.Destroy()
	}
	if s.prevCipher != nil {
		s.prevCipher.Destroy()
	}
	s.mu.Unlock()
	envelope.ClearBytes(s.cfg.MasterKey)
	return s.meta.Close()
}

// ID returns the store's persistent identifier.
func (s *Store) ID() string { return s.id }

// Encrypted reports whether new writes are encrypted.
func (s *Store) Encrypted() bool { return s.currentCodec().Encrypted() }

// currentCodec returns the codec new writes seal with.
func (s *Store) currentCodec() *envelope.Codec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codec
}

// openRecord opens sealed record bytes with the current codec, falling
// back to the previous one for records a running rekey has not reached yet.
func (s *Store) openRecord(data []byte) ([]byte, error) {
	s.mu.RLock()
	codec, prev := s.codec, s.prevCodec
	s.mu.RUnlock()

	plain, err := codec.Open(data)
	if err != nil && prev != nil {
		if plainPrev, prevErr := prev.Open(data); prevErr == nil {
			return plainPrev, nil
		}
	}
	return plain, err
}

// LockStats exposes the lock manager's view of currently contended
// resources for operational visibility.
func (s *Store) LockStats() []lock.Stats { return s.locks.Snapshot() }

// Read loads the record for k into out. A missing record yields
// ErrNotFound. Integrity and authentication failures propagate unmodified.
func (s *Store) Read(ctx context.Context, k key.Key, out any) error {
	path := k.Path(s.root)

	h, err := s.locks.Acquire(ctx, path, lock.Shared, s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer h.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read record %s: %w", k, err)
	}

	plain, err := s.openRecord(data)
	if err != nil {
		return fmt.Errorf("record %s: %w", k, err)
	}

	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", k, err)
	}
	return nil
}

// Write persists v as the record for k, replacing any previous record.
// The value is encoded and size-checked before any lock or I/O.
func (s *Store) Write(ctx context.Context, k key.Key, v any) error {
	plain, err := s.encode(k, v)
	if err != nil {
		return err
	}

	h, err := s.locks.Acquire(ctx, k.Path(s.root), lock.Exclusive, s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer h.Release()

	return s.applyWrite(k, plain)
}

// Remove deletes the record for k. Removing an absent record succeeds.
func (s *Store) Remove(ctx context.Context, k key.Key) error {
	h, err := s.locks.Acquire(ctx, k.Path(s.root), lock.Exclusive, s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer h.Release()

	return s.applyRemove(k)
}

// List returns the keys currently stored under prefix (all keys when the
// prefix is empty). Each call re-walks the directory tree, so the result
// reflects current on-disk state rather than a frozen snapshot.
func (s *Store) List(ctx context.Context, prefix key.Key) ([]key.Key, error) {
	base := s.root
	if len(prefix) > 0 {
		validated, err := key.New(prefix...)
		if err != nil {
			return nil, err
		}
		base = filepath.Join(s.root, filepath.Join([]string(validated)...))
	}

	if _, err := os.Stat(base); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", base, err)
	}

	var keys []key.Key
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || filepath.Ext(path) != key.Extension {
			return nil
		}
		k, err := key.FromPath(s.root, path)
		if err != nil {
			// Foreign or tampered file under the root; not a key.
			s.log.Debug("skipping non-record file", "path", path, "error", err)
			return nil
		}
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// encode marshals and size-checks a record value before any I/O.
func (s *Store) encode(k key.Key, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &ValidationError{Key: k.String(), Err: err}
	}
	if int64(len(data)) > s.cfg.MaxRecordSize {
		return nil, &ValidationError{
			Key: k.String(),
			Err: fmt.Errorf("%w: %d bytes (max %d)", ErrRecordTooLarge, len(data), s.cfg.MaxRecordSize),
		}
	}
	return data, nil
}

// applyWrite seals plain record bytes and persists them atomically.
// The caller must hold the exclusive lock for k's resource.
func (s *Store) applyWrite(k key.Key, plain []byte) error {
	sealed, err := s.currentCodec().Seal(plain)
	if err != nil {
		return fmt.Errorf("failed to seal record %s: %w", k, err)
	}
	return s.persistSealed(k, sealed)
}

// persistSealed writes already-sealed record bytes to disk and updates the
// manifest index. The caller must hold the exclusive lock for k's resource.
func (s *Store) persistSealed(k key.Key, sealed []byte) error {
	path := k.Path(s.root)
	dirPerm, filePerm := s.perms(k)

	// First writes to a new key prefix must not fail on a missing directory.
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directories for %s: %w", k, err)
	}

	if err := atomicWriteFile(path, sealed, filePerm, s.log); err != nil {
		return fmt.Errorf("failed to write record %s: %w", k, err)
	}

	digest := sha256.Sum256(sealed)
	if err := s.meta.SetDigest(k.RelPath(), hex.EncodeToString(digest[:])); err != nil {
		return fmt.Errorf("failed to index record %s: %w", k, err)
	}
	if err := s.meta.UpdateModified(); err != nil {
		return fmt.Errorf("failed to update manifest: %w", err)
	}

	s.log.Debug("record written", "key", k.String(), "bytes", len(sealed), "encrypted", s.Encrypted())
	return nil
}

// applyRemove deletes the record file, tolerating its absence. The caller
// must hold the exclusive lock for k's resource.
func (s *Store) applyRemove(k key.Key) error {
	path := k.Path(s.root)
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove record %s: %w", k, err)
		}
		s.log.Debug("remove of absent record", "key", k.String())
	}
	if err := s.meta.DeleteDigest(k.RelPath()); err != nil {
		return fmt.Errorf("failed to unindex record %s: %w", k, err)
	}
	if err := s.meta.UpdateModified(); err != nil {
		return fmt.Errorf("failed to update manifest: %w", err)
	}

	s.log.Debug("record removed", "key", k.String())
	return nil
}

// perms selects directory and file permissions for a key. Credential and
// secret namespaces are written owner-only.
func (s *Store) perms(k key.Key) (dir os.FileMode, file os.FileMode) {
	if s.cfg.IsSecureNamespace(k.Namespace()) {
		return DirPermSecure, FilePermSecure
	}
	return DirPerm, FilePerm
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial record.
func atomicWriteFile(path string, data []byte, perm os.FileMode, log *slog.Logger) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".statevault-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Debug("failed to remove temp file", "path", tmpPath, "error", err)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Stats describes the store for the status command.
type Stats struct {
	ID        string
	Root      string
	Encrypted bool
	Records   int
	Modified  time.Time
	Locks     []lock.Stats
}

// Stats reports operational information about the store.
func (s *Store) Stats() (*Stats, error) {
	count, err := s.meta.Count()
	if err != nil {
		return nil, err
	}
	modified, err := s.meta.Modified()
	if err != nil {
		modified = time.Time{}
	}
	return &Stats{
		ID:        s.id,
		Root:      s.root,
		Encrypted: s.Encrypted(),
		Records:   count,
		Modified:  modified,
		Locks:     s.locks.Snapshot(),
	}, nil
}
