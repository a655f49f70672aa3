package middleware

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func echoCaller(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Header().Set("X-Body", string(body))
		_, _ = w.Write([]byte(Caller(r.Context()).Hex()))
	})
}

type signed struct {
	method, uri string
	ts          int64
	body        []byte
	sig         []byte
}

func sign(t *testing.T, key *ecdsa.PrivateKey, method, uri string, ts int64, body []byte) signed {
	t.Helper()
	sig, err := crypto.Sign(SigningHash(method, uri, strconv.FormatInt(ts, 10), body).Bytes(), key)
	require.NoError(t, err)
	return signed{method: method, uri: uri, ts: ts, body: body, sig: sig}
}

// send replays s against method and uri, which may differ from what was signed.
func (s signed) send(h http.Handler, method, uri string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, uri, bytes.NewReader(body))
	req.Header.Set(SignatureHeader, hexutil.Encode(s.sig))
	req.Header.Set(TimestampHeader, strconv.FormatInt(s.ts, 10))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s signed) sendAsSigned(h http.Handler) *httptest.ResponseRecorder {
	return s.send(h, s.method, s.uri, s.body)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestCallerAuth(t *testing.T) {
	t.Parallel()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)
	newHandler := func() http.Handler {
		return CallerAuth(1024, time.Minute, zerolog.New(io.Discard))(echoCaller(t))
	}
	body := []byte(`{"upTo":3}`)
	now := time.Now().Unix()

	t.Run("signed", func(t *testing.T) {
		t.Parallel()
		rec := sign(t, key, http.MethodPost, "/v1/pool/gas-price", now, body).sendAsSigned(newHandler())
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, want.Hex(), rec.Body.String())
		require.Equal(t, string(body), rec.Header().Get("X-Body"))
	})

	t.Run("legacy recovery id", func(t *testing.T) {
		t.Parallel()
		s := sign(t, key, http.MethodPost, "/", now, body)
		s.sig[crypto.RecoveryIDOffset] += 27
		require.Equal(t, want.Hex(), s.sendAsSigned(newHandler()).Body.String())
	})

	t.Run("unsigned is anonymous", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		newHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, common.Address{}.Hex(), rec.Body.String())
	})

	t.Run("tampered body recovers another signer", func(t *testing.T) {
		t.Parallel()
		s := sign(t, key, http.MethodPost, "/", now, body)
		rec := s.send(newHandler(), http.MethodPost, "/", []byte(`{"upTo":4}`))
		require.NotEqual(t, want.Hex(), rec.Body.String())
	})

	t.Run("signature does not move to another route", func(t *testing.T) {
		t.Parallel()
		h := newHandler()
		s := sign(t, key, http.MethodPost, "/v1/pool/gas-price", now, body)
		for _, target := range []struct{ method, uri string }{
			{http.MethodPost, "/v1/pool/min-gas"},
			{http.MethodPut, "/v1/pool/gas-price"},
			{http.MethodPost, "/v1/pool/gas-price?chain=other"},
		} {
			rec := s.send(h, target.method, target.uri, body)
			require.NotEqual(t, want.Hex(), rec.Body.String(), "%s %s", target.method, target.uri)
		}
	})

	t.Run("empty body signature is route bound", func(t *testing.T) {
		t.Parallel()
		h := newHandler()
		s := sign(t, key, http.MethodPost, "/v1/debug/chains/a/reset", now, nil)
		rec := s.send(h, http.MethodDelete, "/v1/linker/chains/a", nil)
		require.NotEqual(t, want.Hex(), rec.Body.String())
		require.Equal(t, want.Hex(), s.sendAsSigned(h).Body.String())
	})

	t.Run("replay within window", func(t *testing.T) {
		t.Parallel()
		h := newHandler()
		s := sign(t, key, http.MethodPost, "/v1/pool/gas-price", now, body)
		require.Equal(t, http.StatusOK, s.sendAsSigned(h).Code)
		rec := s.sendAsSigned(h)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "replayed_signature", errorCode(t, rec))
	})

	t.Run("stale and future timestamps", func(t *testing.T) {
		t.Parallel()
		for _, ts := range []int64{now - 120, now + 120} {
			rec := sign(t, key, http.MethodPost, "/", ts, body).sendAsSigned(newHandler())
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "stale_signature", errorCode(t, rec))
		}
	})

	t.Run("missing timestamp", func(t *testing.T) {
		t.Parallel()
		s := sign(t, key, http.MethodPost, "/", now, body)
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		req.Header.Set(SignatureHeader, hexutil.Encode(s.sig))
		rec := httptest.NewRecorder()
		newHandler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "missing_timestamp", errorCode(t, rec))
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		s := sign(t, key, http.MethodPost, "/", now, body)
		s.sig = []byte{0x12, 0x34}
		rec := s.sendAsSigned(newHandler())
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "malformed_signature", errorCode(t, rec))
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		big := make([]byte, 2048)
		rec := sign(t, key, http.MethodPost, "/", now, big).sendAsSigned(newHandler())
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestSignRequest(t *testing.T) {
	t.Parallel()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	h := CallerAuth(1024, 0, zerolog.New(io.Discard))(echoCaller(t))

	body := []byte(`{"price":"7"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/pool/gas-price?x=1", bytes.NewReader(body))
	require.NoError(t, SignRequest(req, key, body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), rec.Body.String())
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := r.Context().Value(RequestIDKey).(string)
		_, _ = w.Write([]byte(id))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, rec.Body.String(), 36)
	require.Equal(t, rec.Body.String(), rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "fixed", rec.Body.String())
}
