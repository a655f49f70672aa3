package middleware

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

const (
	// SignatureHeader carries a 65-byte secp256k1 signature over SigningHash.
	SignatureHeader = "X-Signature"
	// TimestampHeader carries the signing time in unix seconds.
	TimestampHeader = "X-Timestamp"

	// DefaultMaxSkew bounds how far a signed timestamp may drift from the server clock.
	DefaultMaxSkew = 5 * time.Minute

	seenSignatures = 1 << 14
)

// CallerKey is the context key of the authenticated caller address.
const CallerKey contextKey = "caller"

// Caller returns the address recovered by CallerAuth, or the zero address when the
// request was not signed.
func Caller(ctx context.Context) common.Address {
	addr, _ := ctx.Value(CallerKey).(common.Address)
	return addr
}

// WithCaller stores addr as the request caller.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, CallerKey, addr)
}

// SigningHash is the digest a caller signs:
// keccak256(method "\n" requestURI "\n" timestamp "\n" body).
func SigningHash(method, requestURI, timestamp string, body []byte) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(method), []byte{'\n'},
		[]byte(requestURI), []byte{'\n'},
		[]byte(timestamp), []byte{'\n'},
		body,
	)
}

// SignRequest stamps req with the current time and a signature by key. body must
// be the exact bytes req will carry.
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, body []byte) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := crypto.Sign(SigningHash(req.Method, req.URL.RequestURI(), ts, body).Bytes(), key)
	if err != nil {
		return err
	}
	req.Header.Set(TimestampHeader, ts)
	req.Header.Set(SignatureHeader, hexutil.Encode(sig))
	return nil
}

// replayGuard remembers signed digests accepted within the skew window. Keying on
// the digest rather than the signature bytes also catches malleated signatures.
type replayGuard struct {
	mu   sync.Mutex
	seen lru.BasicLRU[common.Hash, int64]
}

func (g *replayGuard) firstUse(key common.Hash, ts int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen.Contains(key) {
		return false
	}
	g.seen.Add(key, ts)
	return true
}

// CallerAuth recovers the signer of a request. The signature binds the method,
// path, query, timestamp and body, so it cannot be moved to another route or
// replayed once the timestamp leaves the maxSkew window; within the window each
// signed request is accepted once. Unsigned requests pass through anonymously.
func CallerAuth(maxBody int64, maxSkew time.Duration, log zerolog.Logger) func(http.Handler) http.Handler {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	guard := &replayGuard{seen: lru.NewBasicLRU[common.Hash, int64](seenSignatures)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sigHex := r.Header.Get(SignatureHeader)
			if sigHex == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
			_ = r.Body.Close()
			if err != nil || int64(len(body)) > maxBody {
				WriteError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sig, err := hexutil.Decode(sigHex)
			if err != nil || len(sig) != crypto.SignatureLength {
				WriteError(w, r, http.StatusUnauthorized, "malformed_signature", "malformed signature", nil)
				return
			}
			tsHeader := r.Header.Get(TimestampHeader)
			ts, err := strconv.ParseInt(tsHeader, 10, 64)
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, "missing_timestamp", "signed requests need "+TimestampHeader, nil)
				return
			}
			if skew := time.Since(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
				WriteError(w, r, http.StatusUnauthorized, "stale_signature", "signature timestamp outside the accepted window", nil)
				return
			}

			// Accept both 0/1 and 27/28 recovery ids.
			if sig[crypto.RecoveryIDOffset] >= 27 {
				sig[crypto.RecoveryIDOffset] -= 27
			}
			hash := SigningHash(r.Method, r.URL.RequestURI(), tsHeader, body)
			pub, err := crypto.SigToPub(hash.Bytes(), sig)
			if err != nil {
				log.Debug().Err(err).Msg("Caller signature rejected")
				WriteError(w, r, http.StatusUnauthorized, "invalid_signature", "invalid signature", nil)
				return
			}
			if !guard.firstUse(hash, ts) {
				WriteError(w, r, http.StatusUnauthorized, "replayed_signature", "signature already used", nil)
				return
			}

			addr := crypto.PubkeyToAddress(*pub)
			reportCaller(r.Context(), addr)
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}
