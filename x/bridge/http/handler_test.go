package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/server/api/middleware"
	"github.com/compose-network/ima-proxy/x/bls"
	"github.com/compose-network/ima-proxy/x/bridge"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/codec"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxy"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

type fixture struct {
	router    *mux.Router
	handler   http.Handler
	node      *bridge.Node
	admin     *ecdsa.PrivateKey
	user      *ecdsa.PrivateKey
	schain    chains.Hash
	schainKey *bls.SecretKey

	// signed counts signed requests so identical repeats get distinct timestamps.
	signed atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, chains.MainnetName)
}

// newFixtureOn serves a node for chain. Schain nodes start connected to Mainnet.
func newFixtureOn(t *testing.T, chain string) *fixture {
	t.Helper()
	log := zerolog.New(io.Discard)

	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	userKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sk, err := bls.GenerateKey(nil)
	require.NoError(t, err)

	contracts := bridge.DefaultContracts()
	contracts.Linker = common.HexToAddress("0x1111")
	contracts.CommunityPool = common.HexToAddress("0x2222")
	contracts.DepositBoxEth = common.HexToAddress("0x3333")

	schain := chains.HashName("schain-1")
	node, err := bridge.NewNode(context.Background(), bridge.Config{
		Chain:         chain,
		Contracts:     contracts,
		Admins:        []common.Address{crypto.PubkeyToAddress(adminKey.PublicKey)},
		TokenManagers: 1,
		CommonKeys:    map[chains.Hash]*bls.PublicKey{schain: sk.PublicKey()},
		GasPrice:      uint256.NewInt(1),
	}, store.NewMemory(), prometheus.NewRegistry(), log)
	require.NoError(t, err)

	r := mux.NewRouter()
	NewHandler(node, codec.NewRegistry(0), log).RegisterMux(r)
	return &fixture{
		router:    r,
		handler:   middleware.CallerAuth(1<<20, 10*time.Minute, log)(r),
		node:      node,
		admin:     adminKey,
		user:      userKey,
		schain:    schain,
		schainKey: sk,
	}
}

func (f *fixture) url(t *testing.T, name string, pairs ...string) string {
	t.Helper()
	u, err := f.router.Get(name).URL(pairs...)
	require.NoError(t, err)
	return u.String()
}

// do sends body signed by key; a nil key sends an anonymous request.
func (f *fixture) do(t *testing.T, method, url string, key *ecdsa.PrivateKey, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if key != nil {
		ts := strconv.FormatInt(time.Now().Unix()-f.signed.Add(1), 10)
		sig, err := crypto.Sign(middleware.SigningHash(method, req.URL.RequestURI(), ts, body).Bytes(), key)
		require.NoError(t, err)
		req.Header.Set(middleware.TimestampHeader, ts)
		req.Header.Set(middleware.SignatureHeader, hexutil.Encode(sig))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doJSON(t *testing.T, method, url string, key *ecdsa.PrivateKey, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return f.do(t, method, url, key, codec.ContentTypeJSON, body)
}

func errorReason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	rec := f.doJSON(t, http.MethodPost, f.url(t, routeNameConnect, "chain", "schain-1"), f.admin,
		connectReq{Counterparts: []common.Address{bridge.DefaultTokenManagerEth}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func TestHandler_ConnectAndState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.doJSON(t, http.MethodPost, f.url(t, routeNameConnect, "chain", "schain-1"), f.user,
		connectReq{Counterparts: []common.Address{bridge.DefaultTokenManagerEth}})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, proxyerr.ReasonPermissionDenied, errorReason(t, rec))

	f.connect(t)

	rec = f.do(t, http.MethodGet, f.url(t, routeNameState, "chain", f.schain.Hex()), nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st stateResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "connected", st.State)
	require.Equal(t, []common.Address{bridge.DefaultTokenManagerEth}, st.Counterparts)

	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameKill, "chain", "schain-1"), f.admin, killReq{Party: "operator"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameKill, "chain", "schain-1"), f.admin, killReq{Party: "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, f.url(t, routeNameState, "chain", "schain-1"), nil, "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "killed_by_operator", st.State)
}

func TestHandler_OutgoingLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	user := crypto.PubkeyToAddress(f.user.PublicKey)
	dest := common.HexToAddress("0xbeef")

	enqueue := enqueueReq{Destination: "schain-1", DestinationContract: dest, Data: hexutil.Bytes{0x01, 0x02}}
	rec := f.doJSON(t, http.MethodPost, f.url(t, routeNameOutgoing), f.user, enqueue)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, proxyerr.ReasonSenderNotRegistered, errorReason(t, rec))

	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameRegister, "chain", "schain-1"), f.admin, registerReq{Contract: user})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameRegister, "chain", "schain-1"), f.admin, registerReq{Contract: user})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameOutgoing), f.user, enqueue)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out enqueueResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, uint64(0), out.Counter)

	rec = f.do(t, http.MethodGet, f.url(t, routeNameOutgoingRange, "chain", "schain-1")+"?from=0&limit=abc", nil, "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, f.url(t, routeNameOutgoingRange, "chain", "schain-1")+"?from=0&limit=10", nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []chains.OutgoingEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, user, entries[0].Message.Sender)
	require.Equal(t, []byte{0x01, 0x02}, entries[0].Message.Data)

	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameAck, "chain", "schain-1"), nil, ackReq{UpTo: 1})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameAck, "chain", "schain-1"), f.admin, ackReq{UpTo: 1})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, f.url(t, routeNameCounters, "chain", "schain-1"), nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ch store.Channel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ch))
	require.Equal(t, store.Channel{Outgoing: 1, Watermark: 1}, ch)

	rec = f.do(t, http.MethodDelete, f.url(t, routeNameUnregister, "chain", "schain-1", "contract", user.Hex()), f.admin, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, f.url(t, routeNameUnregister, "chain", "schain-1", "contract", user.Hex()), f.admin, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Incoming(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	pb := codec.NewProtobufCodec(codec.DefaultMaxMessageSize)

	data, err := messages.EncodeTransferEth(messages.TransferEth{Receiver: common.HexToAddress("0xa11ce"), Amount: uint256.NewInt(5)})
	require.NoError(t, err)
	batch := &chains.Batch{
		Source:          f.schain,
		StartingCounter: 3,
		Messages: []chains.Message{{
			Sender:              bridge.DefaultTokenManagerEth,
			DestinationContract: common.HexToAddress("0x3333"),
			Data:                data,
		}},
	}

	t.Run("counter mismatch", func(t *testing.T) {
		body, err := json.Marshal(batch)
		require.NoError(t, err)
		rec := f.do(t, http.MethodPost, f.url(t, routeNameIncoming), nil, codec.ContentTypeJSON, body)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, proxyerr.ReasonCounterMismatch, errorReason(t, rec))
	})

	batch.StartingCounter = 0
	digest, err := messages.BatchDigest(batch.Source, batch.StartingCounter, batch.Messages)
	require.NoError(t, err)

	t.Run("bad signature", func(t *testing.T) {
		other, err := bls.GenerateKey(nil)
		require.NoError(t, err)
		forged := *batch
		forged.Signature = bls.SignatureToBytes(other.Sign(digest[:]))
		body, err := pb.Encode(&forged)
		require.NoError(t, err)
		rec := f.do(t, http.MethodPost, f.url(t, routeNameIncoming), nil, codec.ContentTypeProtobuf, body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, f.url(t, routeNameIncoming), nil, codec.ContentTypeProtobuf, []byte{0, 0})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepted with a failed receipt", func(t *testing.T) {
		batch.Signature = bls.SignatureToBytes(f.schainKey.Sign(digest[:]))
		body, err := pb.Encode(batch)
		require.NoError(t, err)
		rec := f.do(t, http.MethodPost, f.url(t, routeNameIncoming), nil, codec.ContentTypeProtobuf, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res proxy.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Equal(t, uint64(1), res.NextCounter)
		require.Len(t, res.Receipts, 1)
		require.False(t, res.Receipts[0].Success)
		require.Equal(t, proxyerr.ReasonBalanceTooLow, res.Receipts[0].Reason)

		rec = f.do(t, http.MethodGet, f.url(t, routeNameReceipts, "chain", "schain-1")+"?from=0", nil, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var receipts []store.Receipt
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipts))
		require.Len(t, receipts, 1)
	})
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, f.url(t, routeNameCounters, "chain", "schain-9"), nil, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, proxyerr.ReasonChainNotConnected, errorReason(t, rec))

	rec = f.doJSON(t, http.MethodPost, f.url(t, routeNameGasPrice), nil, gasPriceReq{Price: "1", Timestamp: 1})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, f.url(t, routeNameAck, "chain", "schain-1"), f.admin, codec.ContentTypeJSON, []byte("{"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_json", errorReason(t, rec))
}

func TestParseChain(t *testing.T) {
	t.Parallel()

	h, err := parseChain("schain-1")
	require.NoError(t, err)
	require.Equal(t, chains.HashName("schain-1"), h)

	h, err = parseChain(h.Hex())
	require.NoError(t, err)
	require.Equal(t, chains.HashName("schain-1"), h)

	h, err = parseChain("ALL")
	require.NoError(t, err)
	require.Equal(t, chains.All, h)

	_, err = parseChain(" ")
	require.Error(t, err)
}
