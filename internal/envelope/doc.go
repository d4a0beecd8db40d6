// Package envelope implements the self-describing byte format records are
// persisted in, and the cryptography behind it.
//
// Three forms exist on disk, distinguished by structural markers:
//   - sum256:<digest-hex>:<inner>          integrity wrap (outermost)
//   - aesgcm:<nonce-hex>:<tag-hex>:<ct-hex> encrypted inner payload
//   - plaintext:<raw bytes>                 unencrypted inner payload
//
// Bytes carrying no marker at all are legacy records written before the
// envelope existed and are accepted as-is on read.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from the master passphrase via PBKDF2
//   - 12-byte random nonce per encryption operation
//   - Authenticated encryption prevents tampering
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 32-byte random salt (stored unencrypted in the manifest)
//   - 210,000 iterations (OWASP minimum recommendation)
//
// The integrity wrap is independent of encryption so storage-level
// corruption (ErrIntegrity) is reported before, and distinctly from, a
// failed decryption (ErrAuthentication).
package envelope
