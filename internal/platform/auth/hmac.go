package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"
	defaultClockSkew       = 5 * time.Minute
	defaultNonceTTL        = 5 * time.Minute
	maxSignedBodyBytes     = 1 << 20
)

// SecretProvider resolves shared secrets by integration name.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// StaticSecrets serves secrets already resolved by the config loader.
type StaticSecrets map[string]string

// GetSecret implements SecretProvider.
func (s StaticSecrets) GetSecret(_ context.Context, name string) (string, error) {
	secret := strings.TrimSpace(s[strings.ToLower(strings.TrimSpace(name))])
	if secret == "" {
		return "", fmt.Errorf("auth: hmac secret %q not configured", name)
	}
	return secret, nil
}

// NonceStore tracks used nonces for replay prevention.
type NonceStore interface {
	// UseNonce stores the nonce until expiry. It returns false when the nonce was already used.
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore is a process-local NonceStore for tests and single-instance deployments.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

// NewInMemoryNonceStore constructs the store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]time.Time), now: time.Now}
}

// UseNonce implements NonceStore.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, exp := range s.nonces {
		if !exp.After(now) {
			delete(s.nonces, key)
		}
	}
	key := scope + "::" + nonce
	if _, used := s.nonces[key]; used {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// HMACValidator verifies requests signed by trusted integrations such as the carrier.
// The signature covers METHOD\nPATH\nTIMESTAMP\nNONCE\nhex(sha256(body)).
type HMACValidator struct {
	secrets SecretProvider
	nonces  NonceStore
	logger  *zap.Logger
	now     func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string
	clockSkew       time.Duration
	nonceTTL        time.Duration
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACClock injects a custom clock, primarily for tests.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders customises the header names used by the middleware.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithHMACWindow adjusts the accepted timestamp skew and the nonce retention.
func WithHMACWindow(skew, nonceTTL time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if skew > 0 {
			v.clockSkew = skew
		}
		if nonceTTL > 0 {
			v.nonceTTL = nonceTTL
		}
	}
}

// NewHMACValidator builds a validator using the given secret provider and nonce store.
func NewHMACValidator(secrets SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		secrets:         secrets,
		nonces:          nonces,
		logger:          zap.NewNop(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// RequireHMAC enforces a valid signature made with the named secret.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	scope := strings.TrimSpace(secretName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if err := v.verify(r, scope); err != nil {
				var verr *verificationError
				if errors.As(err, &verr) {
					v.logger.Info("auth: hmac verification rejected", zap.String("scope", scope), zap.String("reason", verr.code))
					respondAuthError(ctx, w, verr.status, verr.code, verr.message)
					return
				}
				v.logger.Error("auth: hmac verification unavailable", zap.String("scope", scope), zap.Error(err))
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "signature verification unavailable")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type verificationError struct {
	status  int
	code    string
	message string
}

func (e *verificationError) Error() string { return e.code + ": " + e.message }

func rejected(code, message string) error {
	return &verificationError{status: http.StatusUnauthorized, code: code, message: message}
}

func (v *HMACValidator) verify(r *http.Request, scope string) error {
	if v == nil || v.secrets == nil || v.nonces == nil || scope == "" {
		return errors.New("auth: hmac validator not configured")
	}
	ctx := r.Context()
	secret, err := v.secrets.GetSecret(ctx, scope)
	if err != nil {
		return err
	}

	rawSignature := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	rawTimestamp := strings.TrimSpace(r.Header.Get(v.timestampHeader))
	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	switch {
	case rawSignature == "":
		return rejected("signature_missing", "signature header missing")
	case rawTimestamp == "":
		return rejected("timestamp_missing", "signature timestamp missing")
	case nonce == "":
		return rejected("nonce_missing", "signature nonce missing")
	}

	timestamp, err := parseSignatureTimestamp(rawTimestamp)
	if err != nil {
		return rejected("timestamp_invalid", "signature timestamp invalid")
	}
	now := v.now()
	if skew := now.Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
		return rejected("timestamp_skew", "signature timestamp outside allowed window")
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return &verificationError{status: http.StatusBadRequest, code: "invalid_body", message: "unable to read body"}
	}
	signature, err := decodeSignature(rawSignature)
	if err != nil {
		return rejected("signature_invalid", "signature encoding invalid")
	}
	expected := computeHMAC([]byte(secret), canonicalRequest(r, body, rawTimestamp, nonce))
	if !hmac.Equal(signature, expected) {
		return rejected("signature_mismatch", "signature verification failed")
	}

	fresh, err := v.nonces.UseNonce(ctx, scope, nonce, now.Add(v.nonceTTL))
	if err != nil {
		return err
	}
	if !fresh {
		return rejected("nonce_replay", "duplicate signature nonce")
	}
	return nil
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64 encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

func canonicalRequest(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	sum := sha256.Sum256(body)
	return []byte(strings.Join([]string{strings.ToUpper(r.Method), path, timestamp, nonce, hex.EncodeToString(sum[:])}, "\n"))
}

func computeHMAC(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
