package crypto

import (
	stded25519 "crypto/ed25519"

	"github.com/wazervm/wazervm/vmerrors"
)

// Ed25519 message/signature/key size limits.
const (
	Ed25519MessageMaxLen = 131072
	Ed25519SignatureLen  = stded25519.SignatureSize // 64
	Ed25519PubkeyLen     = stded25519.PublicKeySize // 32

	// Ed25519BatchMaxLen caps the number of entries accepted by
	// Ed25519BatchVerify: an arbitrary bound for performance / memory
	// reasons, not a cryptographic requirement.
	Ed25519BatchMaxLen = 256
)

// There is no third-party ed25519 library anywhere in the retrieved
// example corpus (see DESIGN.md); crypto/ed25519 from the standard
// library is used directly, which is also what Go's own ecosystem
// treats as canonical for this primitive.

// Ed25519Verify verifies message against signature using public_key.
// Validation errors (wrong lengths) are reported before any
// cryptographic work is attempted.
func Ed25519Verify(message, signature, publicKey []byte) (bool, error) {
	if len(message) > Ed25519MessageMaxLen {
		return false, vmerrors.MessageTooLong(len(message))
	}
	if len(signature) != Ed25519SignatureLen {
		return false, vmerrors.InvalidSignatureFormat("wrong / unsupported length")
	}
	if len(publicKey) == 0 {
		return false, vmerrors.InvalidPubkeyFormat("empty")
	}
	if len(publicKey) != Ed25519PubkeyLen {
		return false, vmerrors.InvalidPubkeyFormat("wrong / unsupported length")
	}
	return stded25519.Verify(stded25519.PublicKey(publicKey), message, signature), nil
}

// Ed25519BatchVerify accepts three shapes: all three lists the same
// length, or one of messages/signatures has length 1 with the other
// two lists equal length >= 1. Any other shape is a BatchErr with the
// canonical message. An empty batch is a success.
func Ed25519BatchVerify(messages, signatures, publicKeys [][]byte) (bool, error) {
	m, s, p := len(messages), len(signatures), len(publicKeys)

	const mismatchMsg = "Mismatched / erroneous number of messages / signatures / public keys"

	valid := (m == s && s == p) ||
		(m == 1 && s == p && s >= 1) ||
		(s == 1 && m == p && m >= 1)
	if !valid {
		return false, vmerrors.BatchErr(mismatchMsg)
	}

	n := m
	if s > n {
		n = s
	}
	if p > n {
		n = p
	}
	if n > Ed25519BatchMaxLen {
		return false, vmerrors.BatchErr(mismatchMsg)
	}

	for i := 0; i < n; i++ {
		msg := messages[pick(i, m)]
		sig := signatures[pick(i, s)]
		pub := publicKeys[pick(i, p)]
		ok, err := Ed25519Verify(msg, sig, pub)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// pick returns the broadcast index into a list of length listLen (1
// means "repeat this single entry for every i").
func pick(i, listLen int) int {
	if listLen == 1 {
		return 0
	}
	return i
}
