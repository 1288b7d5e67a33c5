package crypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/wazervm/wazervm/vmerrors"
)

// secp256k1 message hash / signature / public key sizes.
const (
	Secp256k1MessageHashLen  = 32
	Secp256k1SignatureLen    = 64 // r || s
	Secp256k1CompressedLen   = 33
	Secp256k1UncompressedLen = 65
)

// Secp256k1Verify verifies a 32-byte message hash against a 64-byte
// r||s signature with a 33- or 65-byte public key, using decred's
// dcrec/secp256k1 implementation — the one secp256k1 library common to
// every example repo in the retrieved corpus that declares one.
func Secp256k1Verify(hash, signature, pubKey []byte) (bool, error) {
	if len(hash) != Secp256k1MessageHashLen {
		return false, vmerrors.GenericErr("message hash must be 32 bytes")
	}
	if len(signature) != Secp256k1SignatureLen {
		return false, vmerrors.InvalidSignatureFormat("wrong / unsupported length")
	}
	if len(pubKey) != Secp256k1CompressedLen && len(pubKey) != Secp256k1UncompressedLen {
		return false, vmerrors.InvalidPubkeyFormat("wrong / unsupported length")
	}

	pk, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false, vmerrors.InvalidPubkeyFormat(err.Error())
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return false, vmerrors.InvalidSignatureFormat("r overflows the group order")
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return false, vmerrors.InvalidSignatureFormat("s overflows the group order")
	}
	sig := ecdsa.NewSignature(&r, &s)

	return sig.Verify(hash, pk), nil
}

// Secp256k1RecoverPubkey recovers the 65-byte uncompressed public key
// from a 32-byte message hash, 64-byte r||s signature, and a recovery
// parameter in [0, 3].
func Secp256k1RecoverPubkey(hash, signature []byte, recoveryParam byte) ([]byte, error) {
	if len(hash) != Secp256k1MessageHashLen {
		return nil, vmerrors.GenericErr("message hash must be 32 bytes")
	}
	if len(signature) != Secp256k1SignatureLen {
		return nil, vmerrors.InvalidSignatureFormat("wrong / unsupported length")
	}
	if recoveryParam > 3 {
		return nil, vmerrors.GenericErr("invalid recovery parameter")
	}

	compact := make([]byte, 1+Secp256k1SignatureLen)
	// 27 + recoveryParam selects the uncompressed-key convention used by
	// decred's compact-signature recovery format.
	compact[0] = 27 + recoveryParam
	copy(compact[1:], signature)

	pk, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, vmerrors.GenericErr(err.Error())
	}
	return pk.SerializeUncompressed(), nil
}
