package envelope

import (
	"bytes"
	"errors"
	"testing"
)

func testKey(t *testing.T, seed byte) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher(testKey(t, 1))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	plaintext := []byte(`{"session":"abc123","model":"gpt-4"}`)
	env, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	got, err := cipher.Decrypt(env)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %s, want %s", got, plaintext)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	c1, _ := NewCipher(testKey(t, 1))
	c2, _ := NewCipher(testKey(t, 2))

	env, err := c1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := c2.Decrypt(env); !errors.Is(err, ErrAuthentication) {
		t.Errorf("wrong key: error = %v, want %v", err, ErrAuthentication)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	cipher, _ := NewCipher(testKey(t, 1))
	env, err := cipher.Encrypt([]byte("some record payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Swap one ciphertext hex digit for a different valid one so the
	// envelope stays structurally valid but decodes to different bytes.
	tampered := make([]byte, len(env))
	copy(tampered, env)
	i := len(tampered) - 1
	if tampered[i] == 'a' {
		tampered[i] = 'b'
	} else {
		tampered[i] = 'a'
	}

	if _, err := cipher.Decrypt(tampered); !errors.Is(err, ErrAuthentication) {
		t.Errorf("tampered ciphertext: error = %v, want %v", err, ErrAuthentication)
	}
}

func TestDecryptTruncated(t *testing.T) {
	cipher, _ := NewCipher(testKey(t, 1))
	env, err := cipher.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Cutting into the tag component changes its length, which must be
	// rejected structurally before decryption is attempted.
	truncated := env[:len("aesgcm:")+nonceHexLen+1+10]
	if _, err := cipher.Decrypt(truncated); !errors.Is(err, ErrMalformed) {
		t.Errorf("truncated envelope: error = %v, want %v", err, ErrMalformed)
	}
}

func TestIsEncryptedStructural(t *testing.T) {
	cipher, _ := NewCipher(testKey(t, 1))
	env, _ := cipher.Encrypt([]byte("x"))

	tests := []struct {
		name string
		in   []byte
		want bool
	}{
		{"valid envelope", env, true},
		{"plaintext marker", []byte("plaintext:{}"), false},
		{"bare marker", []byte("aesgcm:"), false},
		{"short nonce", []byte("aesgcm:abcd:0123:00"), false},
		{"non-hex nonce", append([]byte("aesgcm:"), bytes.Repeat([]byte("zz"), NonceSize+TagSize+1)...), false},
		{"random json", []byte(`{"a":1}`), false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEncrypted(tt.in); got != tt.want {
				t.Errorf("IsEncrypted(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWrapUnwrapIntegrity(t *testing.T) {
	inner := []byte(`plaintext:{"k":"v"}`)
	wrapped := WrapIntegrity(inner)

	got, err := UnwrapIntegrity(wrapped)
	if err != nil {
		t.Fatalf("UnwrapIntegrity failed: %v", err)
	}
	if !bytes.Equal(got, inner) {
		t.Errorf("unwrap mismatch: got %q, want %q", got, inner)
	}
}

func TestUnwrapIntegrityDetectsCorruption(t *testing.T) {
	wrapped := WrapIntegrity([]byte(`plaintext:{"k":"v"}`))

	corrupted := make([]byte, len(wrapped))
	copy(corrupted, wrapped)
	corrupted[len(corrupted)-1] ^= 0x01

	if _, err := UnwrapIntegrity(corrupted); !errors.Is(err, ErrIntegrity) {
		t.Errorf("corrupted wrap: error = %v, want %v", err, ErrIntegrity)
	}
}

func TestUnwrapIntegrityLegacyPassthrough(t *testing.T) {
	legacy := []byte(`{"written":"before envelopes existed"}`)
	got, err := UnwrapIntegrity(legacy)
	if err != nil {
		t.Fatalf("legacy payload rejected: %v", err)
	}
	if !bytes.Equal(got, legacy) {
		t.Errorf("legacy payload altered: got %q", got)
	}
}

func TestIntegrityCheckedBeforeDecryption(t *testing.T) {
	cipher, _ := NewCipher(testKey(t, 1))
	codec := NewCodec(cipher)

	sealed, err := codec.Seal([]byte(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// Corrupt a byte inside the inner envelope without touching the
	// checksum header: the outer integrity check must fire, not the AEAD.
	corrupted := make([]byte, len(sealed))
	copy(corrupted, sealed)
	corrupted[len(corrupted)-1] ^= 0x01

	_, err = codec.Open(corrupted)
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("error = %v, want %v", err, ErrIntegrity)
	}
	if errors.Is(err, ErrAuthentication) {
		t.Error("corruption must be reported as integrity failure, not authentication failure")
	}
}

func TestCodecPlaintextMode(t *testing.T) {
	codec := NewCodec(nil)
	if codec.Encrypted() {
		t.Fatal("codec without cipher must not report encrypted")
	}

	plain := []byte(`{"k":"v"}`)
	sealed, err := codec.Seal(plain)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if SealedEncrypted(sealed) {
		t.Error("plaintext seal should not look encrypted")
	}

	got, err := codec.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plain)
	}
}

func TestCodecEncryptedMode(t *testing.T) {
	cipher, _ := NewCipher(testKey(t, 7))
	codec := NewCodec(cipher)
	if !codec.Encrypted() {
		t.Fatal("codec with cipher must report encrypted")
	}

	plain := []byte(`{"token":"tok_abc"}`)
	sealed, err := codec.Seal(plain)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if !SealedEncrypted(sealed) {
		t.Error("encrypted seal should look encrypted")
	}
	if bytes.Contains(sealed, []byte("tok_abc")) {
		t.Error("sealed bytes leak plaintext")
	}

	got, err := codec.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plain)
	}
}

func TestCodecOpensOlderForms(t *testing.T) {
	cipher, _ := NewCipher(testKey(t, 9))
	encCodec := NewCodec(cipher)
	plainCodec := NewCodec(nil)

	plain := []byte(`{"k":"v"}`)

	// A store that gained a key later still reads plaintext-era records.
	sealedPlain, _ := plainCodec.Seal(plain)
	got, err := encCodec.Open(sealedPlain)
	if err != nil {
		t.Fatalf("encrypted codec failed on plaintext record: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("mismatch: got %q", got)
	}

	// Records from before the envelope format pass through untouched.
	got, err = encCodec.Open(plain)
	if err != nil {
		t.Fatalf("legacy raw record rejected: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("mismatch: got %q", got)
	}
}

func TestCodecEncryptedRecordWithoutKey(t *testing.T) {
	cipher, _ := NewCipher(testKey(t, 3))
	sealed, _ := NewCodec(cipher).Seal([]byte(`{"k":"v"}`))

	if _, err := NewCodec(nil).Open(sealed); !errors.Is(err, ErrKeyRequired) {
		t.Errorf("error = %v, want %v", err, ErrKeyRequired)
	}
}

func TestKDFDeterministic(t *testing.T) {
	kdf, err := NewKDF()
	if err != nil {
		t.Fatalf("NewKDF failed: %v", err)
	}
	pass := []byte("correct horse battery staple")

	k1 := kdf.DeriveKey(pass)
	k2 := kdf.DeriveKey(pass)
	if !bytes.Equal(k1, k2) {
		t.Error("same salt and passphrase must derive the same key")
	}
	if len(k1) != KeySize {
		t.Errorf("derived key length = %d, want %d", len(k1), KeySize)
	}

	other, _ := NewKDF()
	if bytes.Equal(k1, other.DeriveKey(pass)) {
		t.Error("different salts must derive different keys")
	}
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Error("short key should be rejected")
	}
}
