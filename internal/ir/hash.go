package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDefinition prefixes definition hashes.
// Version suffix enables future algorithm migration.
const DomainDefinition = "fieldflow/definition/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DefinitionHash computes the content hash of a graph definition.
// The Name is excluded: two pipelines with identical graphs share a hash.
func DefinitionHash(def Definition) (string, error) {
	def.Name = ""
	canonical, err := def.Canonical()
	if err != nil {
		return "", fmt.Errorf("DefinitionHash: %w", err)
	}
	return hashWithDomain(DomainDefinition, canonical), nil
}

// MustDefinitionHash is like DefinitionHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDefinitionHash(def Definition) string {
	h, err := DefinitionHash(def)
	if err != nil {
		panic(err)
	}
	return h
}
