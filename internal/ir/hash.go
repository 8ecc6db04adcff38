package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for an algorithm change.
const (
	DomainSchema = "schemahost/schema/v1"
	DomainResult = "schemahost/result/v1"
	DomainDelta  = "schemahost/delta/v1"
	DomainSource = "schemahost/source/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The separator keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NewSchemaID derives the immutable address of a schema from its name and
// deploying owner. Redeploying the same name under the same owner yields
// the same id and is rejected as a duplicate.
func NewSchemaID(name, owner string) (SchemaID, error) {
	canonical, err := MarshalCanonical(IRObject{
		"name":  IRString(name),
		"owner": IRString(owner),
	})
	if err != nil {
		return "", fmt.Errorf("NewSchemaID: %w", err)
	}
	return SchemaID("x" + hashWithDomain(DomainSchema, canonical)[:32]), nil
}

// MustSchemaID is like NewSchemaID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSchemaID(name, owner string) SchemaID {
	id, err := NewSchemaID(name, owner)
	if err != nil {
		panic(err)
	}
	return id
}

// ResultHash hashes a procedure result. Two executions with identical
// inputs must produce the same hash.
func ResultHash(r Result) (string, error) {
	canonical, err := MarshalCanonical(r.Canonical())
	if err != nil {
		return "", fmt.Errorf("ResultHash: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// DeltaDigest hashes the ordered list of storage mutations of one
// transaction. An empty list has a stable digest too.
func DeltaDigest(mutations []Mutation) (string, error) {
	arr := make(IRArray, len(mutations))
	for i, m := range mutations {
		arr[i] = m.Canonical()
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("DeltaDigest: %w", err)
	}
	return hashWithDomain(DomainDelta, canonical), nil
}

// SourceHash identifies a deployed source text.
func SourceHash(source string) string {
	return hashWithDomain(DomainSource, []byte(source))
}
