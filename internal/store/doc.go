// Package store provides the file-backed record store and its transaction
// manager.
//
// Single-key operations:
//   - Read: shared lock, unwrap integrity, decrypt, JSON decode
//   - Write: validate pre-I/O, exclusive lock, seal, atomic temp+rename
//   - Remove: exclusive lock, idempotent delete
//   - List: re-walks the subtree under a prefix on every call
//
// Multi-key transactions stage writes/removes without touching disk, then
// commit by acquiring exclusive locks over all touched resources in a
// single global sorted order. Because every transaction requests locks in
// the same relative order, circular wait is structurally impossible.
//
// The on-disk directory tree is only ever mutated here, under a lock
// granted by the lock manager; nothing bypasses that protocol.
package store
