package proxy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/bls"
	"github.com/compose-network/ima-proxy/x/chains"
)

// Authenticator decides whether a batch really originates from its source chain.
type Authenticator interface {
	Authenticate(ctx context.Context, caller common.Address, batch *chains.Batch, digest common.Hash) error
}

// SignatureVerifier is the part of bls.Verifier the proxy relies on.
type SignatureVerifier interface {
	Verify(source chains.Hash, digest, signature []byte) error
	VerifyQuorum(source chains.Hash, digest []byte, sig *bls.BitSetSignature) error
}

// DirectionalAuthenticator trusts relayers for batches coming from Mainnet into an
// schain and requires a BLS signature of the source chain otherwise. Symmetric
// demands a signature in both directions.
type DirectionalAuthenticator struct {
	Local     chains.Hash
	Verifier  SignatureVerifier
	Access    access.Checker
	Symmetric bool
}

var _ Authenticator = (*DirectionalAuthenticator)(nil)

func (a *DirectionalAuthenticator) Authenticate(ctx context.Context, caller common.Address, batch *chains.Batch, digest common.Hash) error {
	if chains.IsMainnet(batch.Source) && !chains.IsMainnet(a.Local) && !a.Symmetric {
		return a.Access.Require(ctx, access.RoleRelayer, caller)
	}
	if len(batch.Signers) > 0 {
		return a.Verifier.VerifyQuorum(batch.Source, digest[:], &bls.BitSetSignature{
			Signers:   new(big.Int).SetBytes(batch.Signers),
			Signature: batch.Signature,
		})
	}
	return a.Verifier.Verify(batch.Source, digest[:], batch.Signature)
}
