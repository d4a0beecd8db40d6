package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM authentication tag size

	markerEncrypted = "aesgcm"
	markerPlaintext = "plaintext"
	markerIntegrity = "sum256"

	digestHexLen = sha256.Size * 2
	nonceHexLen  = NonceSize * 2
	tagHexLen    = TagSize * 2
)

var (
	// ErrMalformed means the envelope structure itself is broken: wrong
	// marker, wrong component count, or a component with the wrong length
	// or alphabet. Caught before any decryption is attempted.
	ErrMalformed = errors.New("malformed envelope")

	// ErrAuthentication means GCM rejected the ciphertext: wrong key or
	// tampered ciphertext/tag. No partial plaintext is ever returned.
	ErrAuthentication = errors.New("authentication failed")

	// ErrIntegrity means the outer checksum did not match: the stored
	// bytes were corrupted at the storage level. Distinct from
	// ErrAuthentication so operators can tell "corrupted" from "wrong key".
	ErrIntegrity = errors.New("integrity check failed")

	// ErrKeyRequired means an encrypted record was read but no master key
	// is configured.
	ErrKeyRequired = errors.New("record is encrypted but no master key is configured")
)

var (
	integrityPrefix = []byte(markerIntegrity + ":")
	plaintextPrefix = []byte(markerPlaintext + ":")
	encryptedPrefix = []byte(markerEncrypted + ":")
)

// Cipher provides authenticated encryption into the aesgcm envelope form.
type Cipher struct {
	aead cipher.AEAD
	key  []byte
}

// NewCipher creates a Cipher from a KeySize-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead, key: key}, nil
}

// Encrypt seals plaintext into aesgcm:<nonce-hex>:<tag-hex>:<ciphertext-hex>.
// Every component is fixed-length except the ciphertext, which is always
// an even-length hex string.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	out := fmt.Sprintf("%s:%s:%s:%s",
		markerEncrypted,
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct))
	return []byte(out), nil
}

// Decrypt opens an aesgcm envelope. Component structure is validated
// before decryption so truncation and corruption surface as ErrMalformed;
// a GCM rejection surfaces as ErrAuthentication and never returns
// partially-decrypted data.
func (c *Cipher) Decrypt(env []byte) ([]byte, error) {
	nonce, tag, ct, err := splitEncrypted(env)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Destroy clears the cipher's key material from memory
func (c *Cipher) Destroy() {
	ClearBytes(c.key)
}

// splitEncrypted decodes and validates the four components of an aesgcm
// envelope. Any structural defect returns ErrMalformed.
func splitEncrypted(env []byte) (nonce, tag, ct []byte, err error) {
	parts := bytes.SplitN(env, []byte(":"), 4)
	if len(parts) != 4 || !bytes.Equal(parts[0], []byte(markerEncrypted)) {
		return nil, nil, nil, fmt.Errorf("%w: missing aesgcm components", ErrMalformed)
	}
	if len(parts[1]) != nonceHexLen {
		return nil, nil, nil, fmt.Errorf("%w: nonce length %d", ErrMalformed, len(parts[1]))
	}
	if len(parts[2]) != tagHexLen {
		return nil, nil, nil, fmt.Errorf("%w: tag length %d", ErrMalformed, len(parts[2]))
	}
	nonce, err = hex.DecodeString(string(parts[1]))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad nonce encoding", ErrMalformed)
	}
	tag, err = hex.DecodeString(string(parts[2]))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad tag encoding", ErrMalformed)
	}
	ct, err = hex.DecodeString(string(parts[3]))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad ciphertext encoding", ErrMalformed)
	}
	return nonce, tag, ct, nil
}

// IsEncrypted reports whether bytes are a structurally valid aesgcm
// envelope: marker, component count, component lengths and hex alphabet.
// Not a content sniff.
func IsEncrypted(b []byte) bool {
	_, _, _, err := splitEncrypted(b)
	return err == nil
}

// WrapIntegrity prepends an outer SHA-256 checksum over the inner bytes:
// sum256:<digest-hex>:<inner>. The checksum is independent of encryption
// and detects storage-level corruption before decryption is attempted.
func WrapIntegrity(inner []byte) []byte {
	digest := sha256.Sum256(inner)
	out := make([]byte, 0, len(integrityPrefix)+digestHexLen+1+len(inner))
	out = append(out, integrityPrefix...)
	out = append(out, hex.EncodeToString(digest[:])...)
	out = append(out, ':')
	out = append(out, inner...)
	return out
}

// UnwrapIntegrity verifies and strips the outer checksum. Bytes without
// the sum256 marker are legacy payloads and pass through unchanged. A
// damaged wrap or digest mismatch returns ErrIntegrity.
func UnwrapIntegrity(wrapped []byte) ([]byte, error) {
	if !bytes.HasPrefix(wrapped, integrityPrefix) {
		return wrapped, nil
	}
	rest := wrapped[len(integrityPrefix):]
	if len(rest) < digestHexLen+1 || rest[digestHexLen] != ':' {
		return nil, fmt.Errorf("%w: damaged checksum header", ErrIntegrity)
	}
	want, err := hex.DecodeString(string(rest[:digestHexLen]))
	if err != nil {
		return nil, fmt.Errorf("%w: bad checksum encoding", ErrIntegrity)
	}
	inner := rest[digestHexLen+1:]
	got := sha256.Sum256(inner)
	if !ConstantTimeCompare(want, got[:]) {
		return nil, ErrIntegrity
	}
	return inner, nil
}

// Codec seals and opens whole records, selecting the envelope form from
// its configuration: with a cipher it writes integrity-wrapped ciphertext,
// without one it writes integrity-wrapped plaintext. Open transparently
// accepts both forms plus legacy raw payloads.
type Codec struct {
	cipher *Cipher
}

// NewCodec creates a Codec. A nil cipher selects plaintext mode.
func NewCodec(cipher *Cipher) *Codec {
	return &Codec{cipher: cipher}
}

// Encrypted reports whether the codec writes encrypted envelopes.
func (c *Codec) Encrypted() bool {
	return c.cipher != nil
}

// Seal wraps plaintext record bytes for persistence.
func (c *Codec) Seal(plain []byte) ([]byte, error) {
	var inner []byte
	if c.cipher != nil {
		enc, err := c.cipher.Encrypt(plain)
		if err != nil {
			return nil, err
		}
		inner = enc
	} else {
		inner = make([]byte, 0, len(plaintextPrefix)+len(plain))
		inner = append(inner, plaintextPrefix...)
		inner = append(inner, plain...)
	}
	return WrapIntegrity(inner), nil
}

// Open recovers the record bytes from any accepted on-disk form. Integrity
// is verified first, then the inner form is detected structurally.
func (c *Codec) Open(data []byte) ([]byte, error) {
	inner, err := UnwrapIntegrity(data)
	if err != nil {
		return nil, err
	}
	switch {
	case IsEncrypted(inner):
		if c.cipher == nil {
			return nil, ErrKeyRequired
		}
		return c.cipher.Decrypt(inner)
	case bytes.HasPrefix(inner, plaintextPrefix):
		return inner[len(plaintextPrefix):], nil
	case bytes.HasPrefix(inner, encryptedPrefix):
		// Carries the marker but failed structural validation.
		return nil, fmt.Errorf("%w: truncated aesgcm envelope", ErrMalformed)
	default:
		// Legacy record written before the envelope format existed.
		return inner, nil
	}
}

// SealedEncrypted reports whether stored bytes hold an encrypted inner
// envelope, without verifying integrity or decrypting. Used to decide
// whether a record still needs migration.
func SealedEncrypted(data []byte) bool {
	inner, err := UnwrapIntegrity(data)
	if err != nil {
		inner = data
	}
	return IsEncrypted(inner)
}
