// Package bls wraps BLS12-381 (minimal public key size) signatures used to
// authenticate batches signed by a chain's validator set.
package bls

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	blst "github.com/supranational/blst/bindings/go"
)

const (
	PublicKeyLen = 48
	SignatureLen = 96
	SecretKeyLen = 32
)

// DST is the proof-of-possession ciphersuite tag.
var DST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

var (
	ErrInvalidPublicKey = errors.New("bls: invalid public key")
	ErrInvalidSignature = errors.New("bls: invalid signature")
	ErrInvalidSecretKey = errors.New("bls: invalid secret key")
	ErrNoKeys           = errors.New("bls: nothing to aggregate")
)

type (
	PublicKey = blst.P1Affine
	Signature = blst.P2Affine
)

// SecretKey signs messages.
type SecretKey struct {
	sk *blst.SecretKey
}

// GenerateKey derives a fresh key from r (crypto/rand when nil).
func GenerateKey(r io.Reader) (*SecretKey, error) {
	if r == nil {
		r = rand.Reader
	}
	ikm := make([]byte, 32)
	if _, err := io.ReadFull(r, ikm); err != nil {
		return nil, fmt.Errorf("bls: read entropy: %w", err)
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, ErrInvalidSecretKey
	}
	return &SecretKey{sk: sk}, nil
}

// SecretKeyFromBytes parses a 32-byte big-endian scalar.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != SecretKeyLen {
		return nil, ErrInvalidSecretKey
	}
	sk := new(blst.SecretKey).Deserialize(b)
	if sk == nil {
		return nil, ErrInvalidSecretKey
	}
	return &SecretKey{sk: sk}, nil
}

func (k *SecretKey) Bytes() []byte {
	return k.sk.Serialize()
}

func (k *SecretKey) PublicKey() *PublicKey {
	return new(PublicKey).From(k.sk)
}

func (k *SecretKey) Sign(msg []byte) *Signature {
	return new(Signature).Sign(k.sk, msg, DST)
}

// PublicKeyFromBytes decompresses and validates a public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != PublicKeyLen {
		return nil, ErrInvalidPublicKey
	}
	pk := new(PublicKey).Uncompress(b)
	if pk == nil || !pk.KeyValidate() {
		return nil, ErrInvalidPublicKey
	}
	return pk, nil
}

func PublicKeyToBytes(pk *PublicKey) []byte {
	return pk.Compress()
}

// SignatureFromBytes decompresses a signature and checks subgroup membership.
func SignatureFromBytes(b []byte) (*Signature, error) {
	if len(b) != SignatureLen {
		return nil, ErrInvalidSignature
	}
	sig := new(Signature).Uncompress(b)
	if sig == nil || !sig.SigValidate(false) {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

func SignatureToBytes(sig *Signature) []byte {
	return sig.Compress()
}

// Verify checks sig over msg against pk.
func Verify(pk *PublicKey, sig *Signature, msg []byte) bool {
	if pk == nil || sig == nil {
		return false
	}
	return sig.Verify(true, pk, true, msg, DST)
}

// AggregatePublicKeys sums public keys; the result verifies an aggregate signature
// produced by the same signers over the same message.
func AggregatePublicKeys(pks []*PublicKey) (*PublicKey, error) {
	if len(pks) == 0 {
		return nil, ErrNoKeys
	}
	var agg blst.P1Aggregate
	if !agg.Aggregate(pks, false) {
		return nil, ErrInvalidPublicKey
	}
	return agg.ToAffine(), nil
}

// AggregateSignatures sums signatures over the same message.
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, ErrNoKeys
	}
	var agg blst.P2Aggregate
	if !agg.Aggregate(sigs, true) {
		return nil, ErrInvalidSignature
	}
	return agg.ToAffine(), nil
}
