// Package idempotency replays the stored response of a mutating request when a client retries it
// with the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long an entry is kept when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle state of a stored entry.
type State string

const (
	// StateInFlight marks a key claimed by a request that has not finished.
	StateInFlight State = "in_flight"
	// StateCompleted marks a key whose response can be replayed.
	StateCompleted State = "completed"
)

// Claim is the outcome of trying to take ownership of a key.
type Claim int

const (
	// ClaimAcquired means the caller owns the key and must run the request.
	ClaimAcquired Claim = iota
	// ClaimReplay means a completed response exists for the key.
	ClaimReplay
	// ClaimInFlight means another request currently owns the key.
	ClaimInFlight
)

// Entry is the stored state of one key.
type Entry struct {
	Key         string              `json:"key"`
	Fingerprint string              `json:"fingerprint"`
	State       State               `json:"state"`
	Status      int                 `json:"status,omitempty"`
	Header      map[string][]string `json:"header,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Response is the captured HTTP response persisted for replay.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists claims and completed responses. Implementations must make Claim atomic per key.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, Entry, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

func newEntry(key, fingerprint string, now time.Time, ttl time.Duration) Entry {
	return Entry{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StateInFlight,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttlOrDefault(ttl)),
	}
}

func completeEntry(entry Entry, resp Response, now time.Time, ttl time.Duration) Entry {
	entry.State = StateCompleted
	entry.Status = resp.Status
	entry.Header = storableHeader(resp.Header)
	entry.Body = nil
	if len(resp.Body) > 0 {
		entry.Body = append([]byte(nil), resp.Body...)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttlOrDefault(ttl))
	return entry
}

// classify decides the claim outcome for an existing, unexpired entry.
func classify(entry Entry, fingerprint string) (Claim, error) {
	if entry.Fingerprint != fingerprint {
		return ClaimInFlight, ErrFingerprintMismatch
	}
	if entry.State == StateCompleted {
		return ClaimReplay, nil
	}
	return ClaimInFlight, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeader drops hop-by-hop headers that must not be replayed.
func storableHeader(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Trailer":
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
