package bls

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
)

// Quorum is a validator set with the fraction of its weight that must sign.
type Quorum struct {
	Set         *ValidatorSet
	Numerator   uint64
	Denominator uint64
}

// KeyStorage holds the verification material of every known chain.
type KeyStorage struct {
	mu      sync.RWMutex
	common  map[chains.Hash]*PublicKey
	quorums map[chains.Hash]Quorum
}

func NewKeyStorage() *KeyStorage {
	return &KeyStorage{
		common:  make(map[chains.Hash]*PublicKey),
		quorums: make(map[chains.Hash]Quorum),
	}
}

// SetCommonPublicKey replaces the aggregate key of chain.
func (k *KeyStorage) SetCommonPublicKey(chain chains.Hash, pk *PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.common[chain] = pk
}

func (k *KeyStorage) CommonPublicKey(chain chains.Hash) (*PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pk, ok := k.common[chain]
	return pk, ok
}

// SetQuorum registers a validator set for chain. A zero Denominator defaults to 2/3.
func (k *KeyStorage) SetQuorum(chain chains.Hash, q Quorum) error {
	if q.Set == nil {
		return ErrEmptyValidatorSet
	}
	if q.Denominator == 0 {
		q.Numerator, q.Denominator = 2, 3
	}
	if q.Numerator == 0 {
		return errors.New("bls: quorum numerator must be positive")
	}
	if q.Numerator > q.Denominator {
		return errors.New("bls: quorum numerator exceeds denominator")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.quorums[chain] = q
	return nil
}

func (k *KeyStorage) Quorum(chain chains.Hash) (Quorum, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	q, ok := k.quorums[chain]
	return q, ok
}

// Verifier authenticates digests signed by a source chain. It has no side effects.
type Verifier struct {
	keys *KeyStorage
	log  zerolog.Logger
}

func NewVerifier(keys *KeyStorage, log zerolog.Logger) *Verifier {
	return &Verifier{
		keys: keys,
		log:  log.With().Str("component", "bls-verifier").Logger(),
	}
}

// Verify checks a signature made with the common key of source.
func (v *Verifier) Verify(source chains.Hash, digest, signature []byte) error {
	pk, ok := v.keys.CommonPublicKey(source)
	if !ok {
		return proxyerr.ErrUnknownPublicKey.WithContext("chain", source.Hex())
	}
	sig, err := SignatureFromBytes(signature)
	if err != nil {
		return proxyerr.ErrInvalidSignature.WithCause(err)
	}
	if !Verify(pk, sig, digest) {
		v.log.Debug().Str("chain", source.Hex()).Msg("Signature rejected")
		return proxyerr.ErrInvalidSignature
	}
	return nil
}

// VerifyQuorum checks an aggregate signature of a subset of the validator set of source.
func (v *Verifier) VerifyQuorum(source chains.Hash, digest []byte, sig *BitSetSignature) error {
	q, ok := v.keys.Quorum(source)
	if !ok {
		return proxyerr.ErrUnknownPublicKey.WithContext("chain", source.Hex())
	}
	err := sig.Verify(digest, q.Set, q.Numerator, q.Denominator)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInsufficientWeight):
		return proxyerr.ErrInsufficientWeight.WithCause(err)
	default:
		v.log.Debug().Err(err).Str("chain", source.Hex()).Msg("Quorum signature rejected")
		return proxyerr.ErrInvalidSignature.WithCause(err)
	}
}
