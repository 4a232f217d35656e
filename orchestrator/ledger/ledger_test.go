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
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	l, err := New(context.Background(), store)
	require.NoError(t, err)
	return l, store
}

func appendN(t *testing.T, l *Ledger, requestID string, n int) []Record {
	t.Helper()
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := l.Append(context.Background(), Event{
			RequestID: requestID,
			Type:      EventBackendAttempt,
			BackendID: fmt.Sprintf("backend-%d", i),
			Detail:    map[string]interface{}{"position": i},
		})
		require.NoError(t, err)
		out = append(out, *rec)
	}
	return out
}

func TestAppend_ChainsRecords(t *testing.T) {
	l, _ := newTestLedger(t)

	first, err := l.Append(context.Background(), Event{
		RequestID: "req-1",
		Type:      EventSubmitted,
		Detail:    map[string]interface{}{"source_pod": "portfolio"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Empty(t, first.PrevHash, "genesis record has no predecessor")
	assert.NotEmpty(t, first.PayloadHash)
	assert.NotEmpty(t, first.ID)

	second, err := l.Append(context.Background(), Event{
		RequestID: "req-1",
		Type:      EventBackendAttempt,
		BackendID: "annealer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, HashRecord(first), second.PrevHash)
}

func TestAppend_Validation(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Append(context.Background(), Event{Type: EventSubmitted})
	assert.Error(t, err)

	_, err = l.Append(context.Background(), Event{RequestID: "req-1"})
	assert.Error(t, err)
}

func TestVerifyChain_Valid(t *testing.T) {
	l, _ := newTestLedger(t)
	appendN(t, l, "req-1", 6)

	ok, err := l.VerifyChain(context.Background(), 1, 6)
	require.NoError(t, err)
	assert.True(t, ok)

	// Partial ranges verify too, including linkage to the prior record.
	ok, err = l.VerifyChain(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyChain_DetectsCorruption(t *testing.T) {
	l, store := newTestLedger(t)
	appendN(t, l, "req-1", 5)

	store.Corrupt(3, "0000000000000000000000000000000000000000000000000000000000000000")

	ok, err := l.VerifyChain(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	// A range entirely before the corrupted record still verifies.
	ok, err = l.VerifyChain(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	// A range starting after it fails too: the corrupted predecessor no
	// longer links to its successor.
	ok, err = l.VerifyChain(context.Background(), 4, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.VerifyChain(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyChain_InvalidRange(t *testing.T) {
	l, _ := newTestLedger(t)
	appendN(t, l, "req-1", 2)

	_, err := l.VerifyChain(context.Background(), 5, 2)
	assert.Error(t, err)

	_, err = l.VerifyChain(context.Background(), 10, 20)
	assert.Error(t, err)
}

func TestQuery_ByRequest(t *testing.T) {
	l, _ := newTestLedger(t)
	appendN(t, l, "req-a", 3)
	appendN(t, l, "req-b", 2)

	recs, err := l.Query(context.Background(), "req-a")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, "req-a", rec.RequestID)
		if i > 0 {
			assert.Greater(t, rec.Sequence, recs[i-1].Sequence)
		}
	}
}

func TestAppend_StoreOutage(t *testing.T) {
	l, store := newTestLedger(t)
	appendN(t, l, "req-1", 2)

	store.FailWith(errors.New("disk on fire"))

	_, err := l.Append(context.Background(), Event{RequestID: "req-1", Type: EventCompleted})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	// The failed append must not burn a sequence number.
	store.Recover()
	rec, err := l.Append(context.Background(), Event{RequestID: "req-1", Type: EventCompleted})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Sequence)

	ok, err := l.VerifyChain(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_ResumesChain(t *testing.T) {
	store := NewMemoryStore()
	l, err := New(context.Background(), store)
	require.NoError(t, err)
	appendN(t, l, "req-1", 4)

	// A new ledger over the same store continues the existing chain.
	resumed, err := New(context.Background(), store)
	require.NoError(t, err)

	rec, err := resumed.Append(context.Background(), Event{RequestID: "req-2", Type: EventSubmitted})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rec.Sequence)

	ok, err := resumed.VerifyChain(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAppend_ConcurrentGaplessSequence(t *testing.T) {
	l, store := newTestLedger(t)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			requestID := fmt.Sprintf("req-%d", w)
			for i := 0; i < perWorker; i++ {
				_, err := l.Append(context.Background(), Event{
					RequestID: requestID,
					Type:      EventBackendAttempt,
					BackendID: "backend",
				})
				if err != nil {
					t.Errorf("append failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	total := workers * perWorker
	require.Equal(t, total, store.Len())
	assert.Equal(t, uint64(total), l.LastSequence())

	recs, err := store.Range(context.Background(), 1, uint64(total))
	require.NoError(t, err)
	require.Len(t, recs, total)
	for i, rec := range recs {
		assert.Equal(t, uint64(i+1), rec.Sequence, "sequence must be gapless")
	}

	ok, err := l.VerifyChain(context.Background(), 1, uint64(total))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPayload_FieldBoundaries(t *testing.T) {
	// Length prefixes keep adjacent fields from colliding.
	a := &Record{RequestID: "ab", BackendID: "c"}
	b := &Record{RequestID: "a", BackendID: "bc"}
	assert.NotEqual(t, HashPayload(a), HashPayload(b))
}
