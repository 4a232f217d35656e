// Copyright 2025 QuantumGrid
// SPDX-License-Identifier: BUSL-1.1
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
	"sync"
)

// MemoryStore keeps ledger records in process memory. Used for tests and for
// running without a database; it offers ordering but no crash durability.
type MemoryStore struct {
	records []Record
	mu      sync.RWMutex

	// FailAppends forces Append to fail, simulating a store outage.
	FailAppends bool
	failErr     error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes subsequent appends fail with err.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailAppends = true
	s.failErr = err
}

// Recover clears a forced failure.
func (s *MemoryStore) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailAppends = false
	s.failErr = nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppends {
		return s.failErr
	}
	s.records = append(s.records, *rec)
	return nil
}

// Last implements Store.
func (s *MemoryStore) Last(ctx context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	rec := s.records[len(s.records)-1]
	return &rec, nil
}

// Range implements Store.
func (s *MemoryStore) Range(ctx context.Context, fromSeq, toSeq uint64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Sequence >= fromSeq && rec.Sequence <= toSeq {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ByRequest implements Store.
func (s *MemoryStore) ByRequest(ctx context.Context, requestID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Corrupt overwrites a stored record's payload hash. Test hook for chain
// verification.
func (s *MemoryStore) Corrupt(seq uint64, payloadHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Sequence == seq {
			s.records[i].PayloadHash = payloadHash
			return
		}
	}
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
