package crypto_test

import (
	stded25519 "crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wazervm/wazervm/crypto"
	"github.com/wazervm/wazervm/vmerrors"
)

// RFC 8032 test vector 1: https://datatracker.ietf.org/doc/html/rfc8032#section-7.1
const (
	rfc8032PubkeyHex = "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	rfc8032SigHex    = "e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e065224901555fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b"
)

func TestEd25519VerifyRFC8032Vector1(t *testing.T) {
	pk, err := hex.DecodeString(rfc8032PubkeyHex)
	require.NoError(t, err)
	sig, err := hex.DecodeString(rfc8032SigHex)
	require.NoError(t, err)

	ok, err := crypto.Ed25519Verify([]byte{}, sig, pk)
	require.NoError(t, err)
	assert.True(t, ok)

	flipped := append([]byte(nil), sig...)
	flipped[0] ^= 0xFF
	ok, err = crypto.Ed25519Verify([]byte{}, flipped, pk)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEd25519VerifyRejectsOversizedMessage(t *testing.T) {
	pub, priv, err := stded25519.GenerateKey(nil)
	require.NoError(t, err)
	msg := make([]byte, crypto.Ed25519MessageMaxLen+1)
	sig := stded25519.Sign(priv, msg[:0])

	_, err = crypto.Ed25519Verify(msg, sig, pub)
	assert.ErrorIs(t, err, vmerrors.MessageTooLong(0))
}

func TestEd25519VerifyRejectsBadLengths(t *testing.T) {
	pub, priv, err := stded25519.GenerateKey(nil)
	require.NoError(t, err)
	msg := []byte("hello")
	sig := stded25519.Sign(priv, msg)

	_, err = crypto.Ed25519Verify(msg, sig[:10], pub)
	assert.ErrorIs(t, err, vmerrors.InvalidSignatureFormat(""))

	_, err = crypto.Ed25519Verify(msg, sig, pub[:10])
	assert.ErrorIs(t, err, vmerrors.InvalidPubkeyFormat(""))
}

func genEd25519(t *testing.T, msg []byte) (pub, sig []byte) {
	t.Helper()
	p, priv, err := stded25519.GenerateKey(nil)
	require.NoError(t, err)
	return p, stded25519.Sign(priv, msg)
}

func TestEd25519BatchVerifyEmptyIsSuccess(t *testing.T) {
	ok, err := crypto.Ed25519BatchVerify(nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEd25519BatchVerifySameLength(t *testing.T) {
	m1, m2 := []byte("one"), []byte("two")
	p1, s1 := genEd25519(t, m1)
	p2, s2 := genEd25519(t, m2)

	ok, err := crypto.Ed25519BatchVerify([][]byte{m1, m2}, [][]byte{s1, s2}, [][]byte{p1, p2})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEd25519BatchVerifyOneMessageManySigners(t *testing.T) {
	msg := []byte("broadcast")
	p1, s1 := genEd25519(t, msg)
	p2, s2 := genEd25519(t, msg)

	ok, err := crypto.Ed25519BatchVerify([][]byte{msg}, [][]byte{s1, s2}, [][]byte{p1, p2})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEd25519BatchVerifyOneSignatureManyMessagesAndKeys(t *testing.T) {
	// one of the first two lists (signatures) has length 1, the other two
	// (messages, public keys) have equal length >= 1.
	m1, m2 := []byte("alpha"), []byte("beta")
	p1, s1 := genEd25519(t, m1)
	p2, _ := genEd25519(t, m2)

	ok, err := crypto.Ed25519BatchVerify([][]byte{m1, m2}, [][]byte{s1}, [][]byte{p1, p2})
	require.NoError(t, err)
	// s1 only verifies against (m1, p1); broadcasting it against (m2, p2)
	// must fail verification (not error).
	assert.False(t, ok)
}

func TestEd25519BatchVerifyMismatchedShapeErrors(t *testing.T) {
	msg := []byte("x")
	p1, s1 := genEd25519(t, msg)
	p2, s2 := genEd25519(t, msg)

	_, err := crypto.Ed25519BatchVerify([][]byte{msg, msg}, [][]byte{s1, s2}, [][]byte{p1, p2, p2})
	assert.ErrorIs(t, err, vmerrors.BatchErr(""))
}

func TestSecp256k1VerifyRoundTrip(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}

	sig := ecdsa.Sign(priv, hash)
	rBytes := sig.R().Bytes()
	sBytes := sig.S().Bytes()
	compact := append(append([]byte{}, rBytes[:]...), sBytes[:]...)

	pubCompressed := priv.PubKey().SerializeCompressed()
	ok, err := crypto.Secp256k1Verify(hash, compact, pubCompressed)
	require.NoError(t, err)
	assert.True(t, ok)

	pubUncompressed := priv.PubKey().SerializeUncompressed()
	ok, err = crypto.Secp256k1Verify(hash, compact, pubUncompressed)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSecp256k1VerifyRejectsBadLengths(t *testing.T) {
	_, err := crypto.Secp256k1Verify(make([]byte, 31), make([]byte, 64), make([]byte, 33))
	assert.Error(t, err)

	_, err = crypto.Secp256k1Verify(make([]byte, 32), make([]byte, 63), make([]byte, 33))
	assert.ErrorIs(t, err, vmerrors.InvalidSignatureFormat(""))

	_, err = crypto.Secp256k1Verify(make([]byte, 32), make([]byte, 64), make([]byte, 10))
	assert.ErrorIs(t, err, vmerrors.InvalidPubkeyFormat(""))
}
