package manifest

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// FileName is the manifest database file under the store root. Record
// files always carry a .json suffix, so the name cannot collide with a key.
const FileName = "manifest.db"

// Bucket names
var (
	configBucket  = []byte("config")  // KDF params, timestamps, store ID
	digestsBucket = []byte("digests") // record path -> sealed-bytes SHA-256 (hex)
)

// Config keys
var (
	keyVersion      = []byte("version")
	keyCreated      = []byte("created")
	keyModified     = []byte("modified")
	keySalt         = []byte("salt")
	keyIters        = []byte("iterations")
	keyPendingSalt  = []byte("pending_salt")
	keyPendingIters = []byte("pending_iterations")
	keyStoreID      = []byte("store_id")
)

var ErrNoKDF = errors.New("kdf parameters not set")

// DB wraps the BBolt manifest database.
type DB struct {
	db *bolt.DB
}

// Open opens or creates the manifest database and ensures its bucket
// structure exists.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{configBucket, digestsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(configBucket)
		if config.Get(keyVersion) != nil {
			return nil
		}
		if err := config.Put(keyVersion, []byte("1")); err != nil {
			return err
		}
		now, _ := time.Now().MarshalBinary()
		if err := config.Put(keyCreated, now); err != nil {
			return err
		}
		return config.Put(keyModified, now)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database
func (m *DB) Close() error {
	return m.db.Close()
}

// KDFParams returns the stored salt and iteration count, or ErrNoKDF when
// the store has never had a key configured.
func (m *DB) KDFParams() (salt []byte, iterations uint32, err error) {
	return m.readKDF(keySalt, keyIters)
}

// SetKDFParams stores the salt and iteration count used to derive the
// encryption key, so the same passphrase derives the same key across runs.
func (m *DB) SetKDFParams(salt []byte, iterations uint32) error {
	return m.writeKDF(keySalt, keyIters, salt, iterations)
}

// PendingKDF returns the staged parameters of an unfinished rekey, or
// ErrNoKDF when no rekey is in flight.
func (m *DB) PendingKDF() (salt []byte, iterations uint32, err error) {
	return m.readKDF(keyPendingSalt, keyPendingIters)
}

// SetPendingKDF stages the parameters a rekey will promote on completion.
// Staging before any record is re-written lets an interrupted rekey be
// resumed with the same derived key.
func (m *DB) SetPendingKDF(salt []byte, iterations uint32) error {
	return m.writeKDF(keyPendingSalt, keyPendingIters, salt, iterations)
}

// PromotePendingKDF atomically replaces the active KDF parameters with the
// staged ones and clears the staging keys. ErrNoKDF when nothing is staged.
func (m *DB) PromotePendingKDF() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(configBucket)
		salt := config.Get(keyPendingSalt)
		iters := config.Get(keyPendingIters)
		if salt == nil || len(iters) != 4 {
			return ErrNoKDF
		}
		if err := config.Put(keySalt, salt); err != nil {
			return err
		}
		if err := config.Put(keyIters, iters); err != nil {
			return err
		}
		if err := config.Delete(keyPendingSalt); err != nil {
			return err
		}
		return config.Delete(keyPendingIters)
	})
}

func (m *DB) readKDF(saltKey, itersKey []byte) (salt []byte, iterations uint32, err error) {
	err = m.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(configBucket)
		s := config.Get(saltKey)
		if s == nil {
			return ErrNoKDF
		}
		// Copy: the slice is only valid during the transaction
		salt = append([]byte(nil), s...)

		iters := config.Get(itersKey)
		if iters == nil || len(iters) != 4 {
			return ErrNoKDF
		}
		iterations = binary.BigEndian.Uint32(iters)
		return nil
	})
	return salt, iterations, err
}

func (m *DB) writeKDF(saltKey, itersKey, salt []byte, iterations uint32) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(configBucket)
		if err := config.Put(saltKey, salt); err != nil {
			return err
		}
		iters := make([]byte, 4)
		binary.BigEndian.PutUint32(iters, iterations)
		return config.Put(itersKey, iters)
	})
}

// StoreID retrieves the store ID, generating and persisting one on first use.
func (m *DB) StoreID() (string, error) {
	var id string
	err := m.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(configBucket).Get(keyStoreID); data != nil {
			id = string(data)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate store ID: %w", err)
	}
	id = hex.EncodeToString(b)

	err = m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(configBucket).Put(keyStoreID, []byte(id))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateModified updates the last modified timestamp
func (m *DB) UpdateModified() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		now, _ := time.Now().MarshalBinary()
		return tx.Bucket(configBucket).Put(keyModified, now)
	})
}

// Modified retrieves the last modified timestamp
func (m *DB) Modified() (time.Time, error) {
	var modified time.Time
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(configBucket).Get(keyModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// SetDigest records the SHA-256 (hex) of a record's sealed file bytes.
func (m *DB) SetDigest(relPath, digest string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(digestsBucket).Put([]byte(relPath), []byte(digest))
	})
}

// Digest returns the recorded digest for a record path, or "" when the
// record is not tracked.
func (m *DB) Digest(relPath string) (string, error) {
	var digest string
	err := m.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(digestsBucket).Get([]byte(relPath)); data != nil {
			digest = string(data)
		}
		return nil
	})
	return digest, err
}

// DeleteDigest removes a record path from the index.
func (m *DB) DeleteDigest(relPath string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(digestsBucket).Delete([]byte(relPath))
	})
}

// ForEachDigest iterates over all tracked record paths and their digests.
func (m *DB) ForEachDigest(fn func(relPath, digest string) error) error {
	return m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(digestsBucket).ForEach(func(k, v []byte) error {
			return fn(string(k), string(v))
		})
	})
}

// Count returns the number of tracked records.
func (m *DB) Count() (int, error) {
	var n int
	err := m.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(digestsBucket).Stats().KeyN
		return nil
	})
	return n, err
}
