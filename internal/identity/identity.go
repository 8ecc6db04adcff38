// Package identity turns signed call envelopes into caller identities.
//
// A caller is identified by its hex-encoded ed25519 public key. The
// signature covers the canonical JSON of the call payload under a domain
// prefix, so a signature for one call cannot be replayed as another.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/schemahost/internal/ir"
)

// DomainCall separates call signatures from every other signed or hashed
// value.
const DomainCall = "schemahost/call/v1"

// Algorithm is the only supported signature algorithm.
const Algorithm = "ed25519"

var (
	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = errors.New("signature does not verify")

	// ErrUnsupportedAlgorithm is returned for envelopes not signed with
	// ed25519.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)

// Payload is the signed content of one call.
type Payload struct {
	Schema    ir.SchemaID `json:"schema"`
	Procedure string      `json:"procedure"`
	Args      ir.IRArray  `json:"args"`
	TxID      string      `json:"tx_id"`
	Height    int64       `json:"height"`
}

// SigningBytes returns domain || 0x00 || canonical(payload).
func (p Payload) SigningBytes() ([]byte, error) {
	args := p.Args
	if args == nil {
		args = ir.IRArray{}
	}
	canonical, err := ir.MarshalCanonical(ir.IRObject{
		"schema":    ir.IRString(p.Schema),
		"procedure": ir.IRString(p.Procedure),
		"args":      args,
		"tx_id":     ir.IRString(p.TxID),
		"height":    ir.IRInt(p.Height),
	})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := make([]byte, 0, len(DomainCall)+1+len(canonical))
	out = append(out, DomainCall...)
	out = append(out, 0x00)
	return append(out, canonical...), nil
}

// Envelope is a payload with the signer's public key and signature, both
// hex encoded.
type Envelope struct {
	Algorithm string  `json:"algorithm"`
	PublicKey string  `json:"public_key"`
	Signature string  `json:"signature"`
	Payload   Payload `json:"payload"`
}

// Provider derives the caller identity from an envelope.
type Provider interface {
	Caller(env Envelope) (string, error)
}

// Ed25519Provider verifies ed25519 envelopes.
type Ed25519Provider struct{}

// Caller verifies env and returns the signer's public key as the caller.
func (Ed25519Provider) Caller(env Envelope) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(env.Algorithm), Algorithm) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, env.Algorithm)
	}
	pub, err := hex.DecodeString(strings.TrimSpace(env.PublicKey))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", errors.New("invalid public_key encoding")
	}
	sig, err := hex.DecodeString(strings.TrimSpace(env.Signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", errors.New("invalid signature encoding")
	}
	msg, err := env.Payload.SigningBytes()
	if err != nil {
		return "", err
	}
	if !ed25519.Verify(pub, msg, sig) {
		return "", ErrBadSignature
	}
	return hex.EncodeToString(pub), nil
}

// Signer signs call payloads with one ed25519 key.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner creates a signer from a hex-encoded 32-byte seed.
func NewSigner(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Identity returns the caller identity this signer produces.
func (s *Signer) Identity() string {
	return hex.EncodeToString(s.priv.Public().(ed25519.PublicKey))
}

// Sign wraps p in a signed envelope.
func (s *Signer) Sign(p Payload) (Envelope, error) {
	msg, err := p.SigningBytes()
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Algorithm: Algorithm,
		PublicKey: s.Identity(),
		Signature: hex.EncodeToString(ed25519.Sign(s.priv, msg)),
		Payload:   p,
	}, nil
}
