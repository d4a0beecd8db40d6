// Package manifest provides the BBolt database holding store metadata.
//
// Database structure uses two buckets:
//   - config: KDF parameters (salt, iterations), timestamps, store ID
//   - digests: canonical record path -> SHA-256 of the sealed file bytes
//
// The digest index is maintained on every write/remove (under the
// record's lock) and powers verify/status without requiring decryption.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package manifest
