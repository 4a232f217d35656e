// Copyright 2025 QuantumGrid
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the orchestration transitions recorded in the ledger.
type EventType string

const (
	// EventSubmitted marks an admitted request entering the router.
	EventSubmitted EventType = "submitted"

	// EventBackendAttempt marks a solve call issued to a backend.
	EventBackendAttempt EventType = "backend-attempt"

	// EventBackendFailure marks a failed or timed-out backend attempt.
	EventBackendFailure EventType = "backend-failure"

	// EventBackendSuccess marks the successful backend attempt.
	EventBackendSuccess EventType = "backend-success"

	// EventFallbackTriggered marks the router moving to the next candidate.
	EventFallbackTriggered EventType = "fallback-triggered"

	// EventCompleted marks the terminal state of a request, success or not.
	EventCompleted EventType = "completed"
)

// Event is the caller-facing payload of one ledger append.
type Event struct {
	RequestID string                 `json:"request_id"`
	Type      EventType              `json:"event_type"`
	BackendID string                 `json:"backend_id,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// Record is one hash-chained ledger entry. Records are append-only: never
// mutated, never deleted.
type Record struct {
	Sequence    uint64    `json:"sequence"`
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Type        EventType `json:"event_type"`
	BackendID   string    `json:"backend_id,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Detail      []byte    `json:"detail,omitempty"`
	PayloadHash string    `json:"payload_hash"`
	PrevHash    string    `json:"prev_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store is the durable append-only backing for the ledger. Implementations
// must make Append durable before returning: "appended" means "survives a
// crash". The ledger serializes calls, so stores do not need their own append
// ordering.
type Store interface {
	// Append persists a record.
	Append(ctx context.Context, rec *Record) error

	// Last returns the record with the highest sequence, or nil when empty.
	Last(ctx context.Context) (*Record, error)

	// Range returns records with fromSeq <= sequence <= toSeq in sequence order.
	Range(ctx context.Context, fromSeq, toSeq uint64) ([]Record, error)

	// ByRequest returns all records for a request id in sequence order.
	ByRequest(ctx context.Context, requestID string) ([]Record, error)
}

// Ledger is the append-only, hash-chained audit log (LTC). Appends are
// linearized behind a single mutex so sequence numbers are gapless and
// globally totally ordered across concurrent requests.
type Ledger struct {
	store    Store
	mu       sync.Mutex
	lastSeq  uint64
	lastHash string
}

// New creates a ledger over the given store, resuming the chain from the
// store's last record.
func New(ctx context.Context, store Store) (*Ledger, error) {
	last, err := store.Last(ctx)
	if err != nil {
		return nil, &UnavailableError{Op: "open", Cause: err}
	}

	l := &Ledger{store: store}
	if last != nil {
		l.lastSeq = last.Sequence
		l.lastHash = HashRecord(last)
	}
	return l, nil
}

// Append records an event, chaining it to the previous record. The returned
// record is durable when Append returns. On any store failure the in-flight
// event is lost and the caller receives *UnavailableError; the router treats
// that as fatal for the request.
func (l *Ledger) Append(ctx context.Context, ev Event) (*Record, error) {
	if ev.RequestID == "" {
		return nil, fmt.Errorf("ledger append requires a request id")
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("ledger append requires an event type")
	}

	var detail []byte
	if len(ev.Detail) > 0 {
		// json.Marshal sorts map keys, so the encoding is canonical.
		b, err := json.Marshal(ev.Detail)
		if err != nil {
			return nil, fmt.Errorf("ledger append: unencodable detail: %w", err)
		}
		detail = b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := &Record{
		Sequence:  l.lastSeq + 1,
		ID:        uuid.New().String(),
		RequestID: ev.RequestID,
		Type:      ev.Type,
		BackendID: ev.BackendID,
		ErrorKind: ev.ErrorKind,
		Detail:    detail,
		PrevHash:  l.lastHash,
		Timestamp: time.Now().UTC(),
	}
	rec.PayloadHash = HashPayload(rec)

	if err := l.store.Append(ctx, rec); err != nil {
		return nil, &UnavailableError{Op: "append", Cause: err}
	}

	l.lastSeq = rec.Sequence
	l.lastHash = HashRecord(rec)

	out := *rec
	return &out, nil
}

// VerifyChain recomputes hashes for the inclusive sequence range and confirms
// chain integrity. When fromSeq > 1 the linkage to the record before the range
// is also verified.
func (l *Ledger) VerifyChain(ctx context.Context, fromSeq, toSeq uint64) (bool, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}
	if toSeq < fromSeq {
		return false, fmt.Errorf("invalid range: %d > %d", fromSeq, toSeq)
	}

	fetchFrom := fromSeq
	if fetchFrom > 1 {
		fetchFrom--
	}

	recs, err := l.store.Range(ctx, fetchFrom, toSeq)
	if err != nil {
		return false, &UnavailableError{Op: "verify", Cause: err}
	}
	if len(recs) == 0 {
		return false, fmt.Errorf("no records in range [%d, %d]", fromSeq, toSeq)
	}

	prevHash := ""
	for i := range recs {
		rec := &recs[i]
		if i > 0 {
			if rec.Sequence != recs[i-1].Sequence+1 {
				return false, nil
			}
			if rec.PrevHash != prevHash {
				return false, nil
			}
		}
		if rec.Sequence >= fromSeq && HashPayload(rec) != rec.PayloadHash {
			return false, nil
		}
		prevHash = HashRecord(rec)
	}
	return true, nil
}

// Query returns all records for a request id in causal order.
func (l *Ledger) Query(ctx context.Context, requestID string) ([]Record, error) {
	recs, err := l.store.ByRequest(ctx, requestID)
	if err != nil {
		return nil, &UnavailableError{Op: "query", Cause: err}
	}
	return recs, nil
}

// LastSequence returns the highest assigned sequence number.
func (l *Ledger) LastSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// HashPayload computes the SHA-256 hash of a record's event content.
// Fields are length-prefixed to prevent collision attacks.
func HashPayload(rec *Record) string {
	hashInput := fmt.Sprintf(
		"%d:%s|%d:%s|%d:%s|%d:%s|%d:%s",
		len(rec.RequestID), rec.RequestID,
		len(string(rec.Type)), string(rec.Type),
		len(rec.BackendID), rec.BackendID,
		len(rec.ErrorKind), rec.ErrorKind,
		len(rec.Detail), rec.Detail,
	)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// HashRecord computes the SHA-256 hash that the next record chains to.
func HashRecord(rec *Record) string {
	hashInput := fmt.Sprintf(
		"%d|%s|%s|%s",
		rec.Sequence,
		rec.PayloadHash,
		rec.PrevHash,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// UnavailableError indicates the underlying ledger store failed. The router
// treats this as fatal for the in-flight request: a result without an audit
// trail is never returned.
type UnavailableError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ledger unavailable during %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// IsUnavailable reports whether err is a ledger availability failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
