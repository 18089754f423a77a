package snapshot

import (
	"bytes"
	"crypto/md5" //nolint:gosec // content digest for change detection, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize serialises any JSON-compatible value with object keys sorted lexicographically at
// every nesting level, so structurally equal documents produce identical bytes.
func Canonicalize(value any) ([]byte, error) {
	generic, err := ToGeneric(value)
	if err != nil {
		return nil, err
	}
	// encoding/json writes map keys in sorted order, which is what makes the output canonical.
	canonical, err := encode(generic)
	if err != nil {
		return nil, fmt.Errorf("encode canonical json: %w", err)
	}
	return canonical, nil
}

// encode serialises value as plain UTF-8 JSON: no HTML escaping, no trailing newline.
func encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ToGeneric converts a value into plain maps, slices and scalars via a JSON round trip.
func ToGeneric(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return generic, nil
}

// Digest returns the 32-hex-character content checksum of the canonical form and the byte size of
// the plain serialised form.
func Digest(value any) (string, int64, error) {
	plain, err := encode(value)
	if err != nil {
		return "", 0, fmt.Errorf("marshal snapshot: %w", err)
	}
	canonical, err := Canonicalize(value)
	if err != nil {
		return "", 0, err
	}
	sum := md5.Sum(canonical) //nolint:gosec // see import note
	return hex.EncodeToString(sum[:]), int64(len(plain)), nil
}

// ValidateChecksum recomputes the digest and compares it with expected.
func ValidateChecksum(value any, expected string) bool {
	checksum, _, err := Digest(value)
	if err != nil {
		return false
	}
	return checksum == expected
}
