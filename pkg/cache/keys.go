package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns the first 16 hex chars of the MD5 of s. Key material, not
// security material; truncation keeps Redis keys short while collisions stay
// negligible at cache scale.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// CanonicalJSON encodes v with object keys sorted at every level, so the
// same logical value always produces the same bytes regardless of field or
// insertion order. Cache keys derived from it are stable across processes.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache: canonical encode: %w", err)
	}
	// Round-trip through any: encoding/json renders map keys sorted.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("cache: canonical decode: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("cache: canonical re-encode: %w", err)
	}
	return out, nil
}

// HashValue is CanonicalJSON followed by Hash.
func HashValue(v any) (string, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return Hash(string(b)), nil
}
