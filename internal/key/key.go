package key

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyKey       = errors.New("key has no segments")
	ErrEmptySegment   = errors.New("key segment is empty")
	ErrInvalidSegment = errors.New("key segment contains forbidden characters")
)

// Extension is appended to the last segment when a key is mapped to a file.
const Extension = ".json"

// Key is an ordered sequence of path segments identifying exactly one record.
// A Key is only constructed through New, which guarantees no segment can
// escape the store root or collide with another key's file.
type Key []string

// New validates segments and returns them as a Key. It rejects empty
// sequences, empty segments, the "." segment, and segments containing
// "..", "/" or "\". Path cleaning must never alter a segment, otherwise
// two distinct keys could map to the same file. This is the sole
// path-traversal defense and must run before any filesystem operation.
func New(segments ...string) (Key, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyKey
	}
	for _, seg := range segments {
		if seg == "" {
			return nil, ErrEmptySegment
		}
		if seg == "." || strings.Contains(seg, "..") ||
			strings.ContainsAny(seg, `/\`) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSegment, seg)
		}
	}
	k := make(Key, len(segments))
	copy(k, segments)
	return k, nil
}

// Parse builds a Key from a slash-separated string such as "session/abc".
func Parse(s string) (Key, error) {
	return New(strings.Split(s, "/")...)
}

// String returns the canonical slash-separated form of the key.
func (k Key) String() string {
	return strings.Join(k, "/")
}

// Namespace returns the first segment, which groups related records
// (e.g. "auth", "session").
func (k Key) Namespace() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Path maps the key to its canonical file path under root:
// root/<seg>/.../<seg>.json. The mapping is deterministic and injective
// for validated keys, so it doubles as the lock resource identifier.
func (k Key) Path(root string) string {
	return filepath.Join(root, filepath.Join([]string(k)...)) + Extension
}

// RelPath is Path without the root prefix, in slash form. Used as the
// manifest index key and as the transaction lock-ordering key.
func (k Key) RelPath() string {
	return k.String() + Extension
}

// Equal reports whether two keys have identical segment sequences.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the key starts with the given prefix segments.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// FromPath recovers a Key from a record file path below root. It is the
// inverse of Path and validates the recovered segments, so tampered or
// foreign files under the root are rejected rather than surfaced as keys.
func FromPath(root, path string) (Key, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, fmt.Errorf("path %s is not under store root: %w", path, err)
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, Extension) {
		return nil, fmt.Errorf("%s is not a record file", path)
	}
	rel = strings.TrimSuffix(rel, Extension)
	return New(strings.Split(rel, "/")...)
}
