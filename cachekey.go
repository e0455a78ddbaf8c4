package examgen

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CacheKey identifies a generation by its parameters
type CacheKey string

// DeriveKey hashes the canonical serialization of params. Fields are
// serialized as a JSON object with sorted keys, so the key depends only on
// field values.
func DeriveKey(params GenerationParams) CacheKey {
	canonical, err := canonicalParams(params)
	if err != nil {
		// Only plain strings and an int are marshalled; this cannot fail.
		panic(fmt.Sprintf("failed to canonicalize params: %v", err))
	}
	sum := sha256.Sum256(canonical)
	return CacheKey(hex.EncodeToString(sum[:]))
}

func canonicalParams(params GenerationParams) ([]byte, error) {
	// encoding/json writes map keys in sorted order
	fields := map[string]any{
		"subject":     params.Subject,
		"topic":       params.Topic,
		"qtype":       string(params.QType),
		"difficulty":  string(params.Difficulty),
		"bloom_level": string(params.BloomLevel),
		"n":           params.N,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
