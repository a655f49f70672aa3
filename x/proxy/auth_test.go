package proxy

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/bls"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

func TestDirectionalAuthenticator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zerolog.New(io.Discard)

	s := store.NewMemory()
	ac := access.New(s, log)
	require.NoError(t, ac.Bootstrap(ctx, admin))
	require.NoError(t, ac.Grant(ctx, admin, access.RoleRelayer, relayer))

	schain := chains.New("schain-1")
	sk, err := bls.GenerateKey(nil)
	require.NoError(t, err)
	keys := bls.NewKeyStorage()
	keys.SetCommonPublicKey(schain.Hash, sk.PublicKey())
	keys.SetCommonPublicKey(chains.MainnetHash, sk.PublicKey())
	verifier := bls.NewVerifier(keys, log)

	signed := func(source chains.Hash) (*chains.Batch, common.Hash) {
		b := &chains.Batch{Source: source, Messages: []chains.Message{{Sender: senderContract, DestinationContract: receiver}}}
		digest, err := messages.BatchDigest(b.Source, b.StartingCounter, b.Messages)
		require.NoError(t, err)
		b.Signature = bls.SignatureToBytes(sk.Sign(digest[:]))
		return b, digest
	}

	t.Run("mainnet source on schain trusts relayer", func(t *testing.T) {
		t.Parallel()
		a := &DirectionalAuthenticator{Local: schain.Hash, Verifier: verifier, Access: ac}
		b := &chains.Batch{Source: chains.MainnetHash}
		require.NoError(t, a.Authenticate(ctx, relayer, b, common.Hash{}))
		require.ErrorIs(t, a.Authenticate(ctx, stranger, b, common.Hash{}), proxyerr.ErrPermissionDenied)
	})

	t.Run("symmetric requires signature from mainnet", func(t *testing.T) {
		t.Parallel()
		a := &DirectionalAuthenticator{Local: schain.Hash, Verifier: verifier, Access: ac, Symmetric: true}
		b, digest := signed(chains.MainnetHash)
		require.NoError(t, a.Authenticate(ctx, stranger, b, digest))

		b.Signature = nil
		require.ErrorIs(t, a.Authenticate(ctx, relayer, b, digest), proxyerr.ErrInvalidSignature)
	})

	t.Run("schain source on mainnet needs bls", func(t *testing.T) {
		t.Parallel()
		a := &DirectionalAuthenticator{Local: chains.MainnetHash, Verifier: verifier, Access: ac}
		b, digest := signed(schain.Hash)
		require.NoError(t, a.Authenticate(ctx, stranger, b, digest))

		other, err := bls.GenerateKey(nil)
		require.NoError(t, err)
		b.Signature = bls.SignatureToBytes(other.Sign(digest[:]))
		require.ErrorIs(t, a.Authenticate(ctx, relayer, b, digest), proxyerr.ErrInvalidSignature)
	})

	t.Run("quorum signature", func(t *testing.T) {
		t.Parallel()
		source := chains.HashName("schain-quorum")
		var vals []*bls.Validator
		var sks []*bls.SecretKey
		for i := 0; i < 3; i++ {
			k, err := bls.GenerateKey(nil)
			require.NoError(t, err)
			v, err := bls.NewValidator(bls.PublicKeyToBytes(k.PublicKey()), 1)
			require.NoError(t, err)
			vals, sks = append(vals, v), append(sks, k)
		}
		set, err := bls.NewValidatorSet(vals)
		require.NoError(t, err)
		qkeys := bls.NewKeyStorage()
		require.NoError(t, qkeys.SetQuorum(source, bls.Quorum{Set: set}))
		a := &DirectionalAuthenticator{Local: chains.MainnetHash, Verifier: bls.NewVerifier(qkeys, log), Access: ac}

		b := &chains.Batch{Source: source, Messages: []chains.Message{{}}}
		digest, err := messages.BatchDigest(b.Source, 0, b.Messages)
		require.NoError(t, err)
		sig, err := bls.SignWithSubset(digest[:], set, sks[0], sks[2])
		require.NoError(t, err)
		b.Signature, b.Signers = sig.Signature, sig.Signers.Bytes()
		require.NoError(t, a.Authenticate(ctx, stranger, b, digest))

		sig, err = bls.SignWithSubset(digest[:], set, sks[1])
		require.NoError(t, err)
		b.Signature, b.Signers = sig.Signature, sig.Signers.Bytes()
		require.ErrorIs(t, a.Authenticate(ctx, stranger, b, digest), proxyerr.ErrInsufficientWeight)
	})
}
