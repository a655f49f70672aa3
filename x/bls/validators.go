package bls

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
)

var (
	ErrEmptyValidatorSet  = errors.New("bls: empty validator set")
	ErrZeroWeight         = errors.New("bls: validator has zero weight")
	ErrWeightOverflow     = errors.New("bls: weight overflow")
	ErrInsufficientWeight = errors.New("bls: insufficient signed weight")
	ErrUnknownSigner      = errors.New("bls: signer index out of range")
	ErrNoSigners          = errors.New("bls: no signers")
)

// Validator is one member of a chain's signing committee.
type Validator struct {
	PublicKey *PublicKey
	Weight    uint64

	keyBytes []byte
}

// NewValidator parses a compressed key.
func NewValidator(publicKey []byte, weight uint64) (*Validator, error) {
	pk, err := PublicKeyFromBytes(publicKey)
	if err != nil {
		return nil, err
	}
	return &Validator{PublicKey: pk, Weight: weight, keyBytes: bytes.Clone(publicKey)}, nil
}

// ValidatorSet is sorted by public key so signer indices are stable across nodes.
// Repeated keys are merged by summing their weight.
type ValidatorSet struct {
	validators  []*Validator
	totalWeight uint64
}

func NewValidatorSet(validators []*Validator) (*ValidatorSet, error) {
	if len(validators) == 0 {
		return nil, ErrEmptyValidatorSet
	}

	byKey := make(map[string]*Validator, len(validators))
	var total uint64
	for _, v := range validators {
		if v.Weight == 0 {
			return nil, ErrZeroWeight
		}
		kb := v.keyBytes
		if kb == nil {
			kb = PublicKeyToBytes(v.PublicKey)
		}
		var err error
		if total, err = addUint64(total, v.Weight); err != nil {
			return nil, err
		}
		if existing, ok := byKey[string(kb)]; ok {
			existing.Weight += v.Weight
			continue
		}
		byKey[string(kb)] = &Validator{PublicKey: v.PublicKey, Weight: v.Weight, keyBytes: kb}
	}

	sorted := make([]*Validator, 0, len(byKey))
	for _, v := range byKey {
		sorted = append(sorted, v)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].keyBytes, sorted[j].keyBytes) < 0
	})

	return &ValidatorSet{validators: sorted, totalWeight: total}, nil
}

func (s *ValidatorSet) Len() int            { return len(s.validators) }
func (s *ValidatorSet) TotalWeight() uint64 { return s.totalWeight }

// Index returns the canonical position of pk, or -1.
func (s *ValidatorSet) Index(pk *PublicKey) int {
	kb := PublicKeyToBytes(pk)
	for i, v := range s.validators {
		if bytes.Equal(v.keyBytes, kb) {
			return i
		}
	}
	return -1
}

// AggregatePublicKey is the common key of the whole set.
func (s *ValidatorSet) AggregatePublicKey() (*PublicKey, error) {
	pks := make([]*PublicKey, 0, len(s.validators))
	for _, v := range s.validators {
		pks = append(pks, v.PublicKey)
	}
	return AggregatePublicKeys(pks)
}

// BitSetSignature is an aggregate signature together with the canonical indices of its signers.
type BitSetSignature struct {
	Signers   *big.Int
	Signature []byte
}

// Verify checks that the signers reach numerator/denominator of the set's weight
// and that the aggregate signature verifies against their aggregate key.
func (b *BitSetSignature) Verify(msg []byte, set *ValidatorSet, numerator, denominator uint64) error {
	if b.Signers == nil || b.Signers.Sign() == 0 {
		return ErrNoSigners
	}
	if b.Signers.BitLen() > set.Len() {
		return fmt.Errorf("%w: bit %d of %d validators", ErrUnknownSigner, b.Signers.BitLen()-1, set.Len())
	}

	var (
		weight uint64
		pks    = make([]*PublicKey, 0, set.Len())
		err    error
	)
	for i, v := range set.validators {
		if b.Signers.Bit(i) == 0 {
			continue
		}
		if weight, err = addUint64(weight, v.Weight); err != nil {
			return err
		}
		pks = append(pks, v.PublicKey)
	}

	if err := VerifyWeight(weight, set.TotalWeight(), numerator, denominator); err != nil {
		return err
	}

	sig, err := SignatureFromBytes(b.Signature)
	if err != nil {
		return err
	}
	aggPK, err := AggregatePublicKeys(pks)
	if err != nil {
		return err
	}
	if !Verify(aggPK, sig, msg) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyWeight checks signed/total >= numerator/denominator without overflowing.
func VerifyWeight(signed, total, numerator, denominator uint64) error {
	if signed == 0 {
		return fmt.Errorf("%w: signed weight is 0", ErrInsufficientWeight)
	}
	if err := checkMul(numerator, total); err != nil {
		return err
	}
	if err := checkMul(denominator, signed); err != nil {
		return err
	}
	if numerator*total > denominator*signed {
		return fmt.Errorf("%w: %d/%d below %d/%d", ErrInsufficientWeight, signed, total, numerator, denominator)
	}
	return nil
}

// SignWithSubset aggregates signatures of the given keys and marks their indices.
// Keys that are not in set are rejected.
func SignWithSubset(msg []byte, set *ValidatorSet, keys ...*SecretKey) (*BitSetSignature, error) {
	if len(keys) == 0 {
		return nil, ErrNoSigners
	}
	signers := new(big.Int)
	sigs := make([]*Signature, 0, len(keys))
	for _, k := range keys {
		idx := set.Index(k.PublicKey())
		if idx < 0 {
			return nil, ErrUnknownSigner
		}
		signers.SetBit(signers, idx, 1)
		sigs = append(sigs, k.Sign(msg))
	}
	agg, err := AggregateSignatures(sigs)
	if err != nil {
		return nil, err
	}
	return &BitSetSignature{Signers: signers, Signature: SignatureToBytes(agg)}, nil
}

func addUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrWeightOverflow
	}
	return a + b, nil
}

func checkMul(a, b uint64) error {
	if a != 0 && b != 0 && a > math.MaxUint64/b {
		return ErrWeightOverflow
	}
	return nil
}
