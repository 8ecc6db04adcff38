package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

const seedHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testPayload() Payload {
	return Payload{
		Schema:    "xproxy",
		Procedure: "create_user",
		Args:      ir.IRArray{ir.IRString("alice")},
		TxID:      "tx-1",
		Height:    3,
	}
}

func TestSignAndVerify(t *testing.T) {
	s, err := NewSigner(seedHex)
	require.NoError(t, err)
	assert.Len(t, s.Identity(), 64)

	env, err := s.Sign(testPayload())
	require.NoError(t, err)

	caller, err := Ed25519Provider{}.Caller(env)
	require.NoError(t, err)
	assert.Equal(t, s.Identity(), caller)
}

func TestSignatureIsDeterministic(t *testing.T) {
	a, err := NewSigner(seedHex)
	require.NoError(t, err)
	b, err := NewSigner(strings.ToUpper(seedHex))
	require.NoError(t, err)

	ea, err := a.Sign(testPayload())
	require.NoError(t, err)
	eb, err := b.Sign(testPayload())
	require.NoError(t, err)
	assert.Equal(t, ea, eb)
}

func TestTamperedPayloadRejected(t *testing.T) {
	s, err := NewSigner(seedHex)
	require.NoError(t, err)
	env, err := s.Sign(testPayload())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"args", func(e *Envelope) { e.Payload.Args = ir.IRArray{ir.IRString("mallory")} }},
		{"procedure", func(e *Envelope) { e.Payload.Procedure = "set_target" }},
		{"height", func(e *Envelope) { e.Payload.Height = 4 }},
		{"tx id", func(e *Envelope) { e.Payload.TxID = "tx-2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := env
			tt.mutate(&bad)
			_, err := Ed25519Provider{}.Caller(bad)
			assert.ErrorIs(t, err, ErrBadSignature)
		})
	}
}

func TestEnvelopeErrors(t *testing.T) {
	s, err := NewSigner(seedHex)
	require.NoError(t, err)
	env, err := s.Sign(testPayload())
	require.NoError(t, err)

	alg := env
	alg.Algorithm = "es256"
	_, err = Ed25519Provider{}.Caller(alg)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	key := env
	key.PublicKey = "zz"
	_, err = Ed25519Provider{}.Caller(key)
	assert.ErrorContains(t, err, "public_key")

	sig := env
	sig.Signature = sig.Signature[:10]
	_, err = Ed25519Provider{}.Caller(sig)
	assert.ErrorContains(t, err, "signature")
}

func TestNewSignerErrors(t *testing.T) {
	_, err := NewSigner("not hex")
	assert.Error(t, err)
	_, err = NewSigner("0011")
	assert.ErrorContains(t, err, "32 bytes")
}

func TestSigningBytesDomainSeparated(t *testing.T) {
	b, err := testPayload().SigningBytes()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), DomainCall+"\x00{"))
	assert.Contains(t, string(b), `"args":["alice"]`)
}
