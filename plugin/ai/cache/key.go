package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key namespaces used by the provider adapters.
const (
	NamespaceEmbeddings  = "embeddings"
	NamespaceLLMResponse = "llm_response"
)

// GenerateKey derives a cache key from a namespace and an arbitrary payload.
// The payload is canonicalised to JSON with sorted object keys before hashing,
// so maps and structs that encode to the same object collide regardless of
// field order. Slice order is significant.
func GenerateKey(namespace string, payload any) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s payload: %w", namespace, err)
	}
	return namespace + ":" + KeyHash(canonical), nil
}

// KeyHash returns the hex SHA-256 digest of data.
func KeyHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// canonicalJSON round-trips payload through a generic value so that every
// object, including struct-encoded ones, is re-emitted with sorted keys.
func canonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
