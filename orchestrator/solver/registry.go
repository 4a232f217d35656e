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

package solver

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Registry manages solver backends with health monitoring.
// It is thread-safe for concurrent access: readers see a consistent snapshot,
// and health mutations take effect for calls issued after the mutation
// completes.
type Registry struct {
	entries map[string]*registryEntry
	nextSeq int
	logger  *log.Logger
	mu      sync.RWMutex
}

type registryEntry struct {
	desc    Descriptor
	adapter Adapter
	seq     int // registration order, the final tie-break
}

// Candidate pairs a backend snapshot with its adapter for one routing pass.
type Candidate struct {
	Descriptor Descriptor
	Adapter    Adapter
}

// RegistryOption configures the registry during creation.
type RegistryOption func(*Registry)

// WithLogger sets a custom logger for the registry.
func WithLogger(logger *log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new backend registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*registryEntry),
		logger:  log.New(os.Stdout, "[SOLVER_REGISTRY] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a backend with its capability descriptor. Backends start in
// the health state carried by the descriptor. Registering a duplicate id is an
// error.
func (r *Registry) Register(desc Descriptor, adapter Adapter) error {
	if adapter == nil {
		return &RegistryError{Code: ErrRegistryInvalidDescriptor, Message: "adapter cannot be nil"}
	}
	if desc.ID == "" {
		return &RegistryError{Code: ErrRegistryInvalidDescriptor, Message: "backend id is required"}
	}
	if desc.MaxVariables < 1 {
		return &RegistryError{
			BackendID: desc.ID,
			Code:      ErrRegistryInvalidDescriptor,
			Message:   "max_variables must be at least 1",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.ID]; exists {
		return &RegistryError{
			BackendID: desc.ID,
			Code:      ErrRegistryDuplicate,
			Message:   fmt.Sprintf("backend %q already registered", desc.ID),
		}
	}

	r.entries[desc.ID] = &registryEntry{desc: desc, adapter: adapter, seq: r.nextSeq}
	r.nextSeq++

	r.logger.Printf("Registered backend: %s (kind: %s, max_variables: %d)", desc.ID, desc.Kind, desc.MaxVariables)
	return nil
}

// Deregister removes a backend permanently.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; !exists {
		return &RegistryError{
			BackendID: id,
			Code:      ErrRegistryNotFound,
			Message:   fmt.Sprintf("backend %q not found", id),
		}
	}
	delete(r.entries, id)
	r.logger.Printf("Deregistered backend: %s", id)
	return nil
}

// ListCapable returns the candidates able to serve variableCount, ordered by
// ascending cost weight, then ascending expected latency, then registration
// order. Only healthy backends with sufficient capacity qualify. Returns
// *NoCapableBackendError when the filtered list is empty.
func (r *Registry) ListCapable(variableCount int) ([]Candidate, error) {
	r.mu.RLock()
	type ranked struct {
		cand Candidate
		seq  int
	}
	var capable []ranked
	for _, e := range r.entries {
		if e.desc.Healthy && e.desc.MaxVariables >= variableCount {
			capable = append(capable, ranked{cand: Candidate{Descriptor: e.desc, Adapter: e.adapter}, seq: e.seq})
		}
	}
	r.mu.RUnlock()

	if len(capable) == 0 {
		return nil, &NoCapableBackendError{VariableCount: variableCount}
	}

	sort.SliceStable(capable, func(i, j int) bool {
		a, b := capable[i].cand.Descriptor, capable[j].cand.Descriptor
		if a.CostWeight != b.CostWeight {
			return a.CostWeight < b.CostWeight
		}
		if a.ExpectedLatencyMs != b.ExpectedLatencyMs {
			return a.ExpectedLatencyMs < b.ExpectedLatencyMs
		}
		return capable[i].seq < capable[j].seq
	})

	out := make([]Candidate, len(capable))
	for i, c := range capable {
		out[i] = c.cand
	}
	return out, nil
}

// MarkHealthy flags a backend as available for routing.
func (r *Registry) MarkHealthy(id string) error {
	return r.setHealth(id, true)
}

// MarkUnhealthy removes a backend from routing until the next recovery.
func (r *Registry) MarkUnhealthy(id string) error {
	return r.setHealth(id, false)
}

func (r *Registry) setHealth(id string, healthy bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists {
		return &RegistryError{
			BackendID: id,
			Code:      ErrRegistryNotFound,
			Message:   fmt.Sprintf("backend %q not found", id),
		}
	}
	if e.desc.Healthy != healthy {
		e.desc.Healthy = healthy
		r.logger.Printf("Backend %s health changed: healthy=%t", id, healthy)
	}
	return nil
}

// Get returns the descriptor snapshot for a backend.
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[id]
	if !exists {
		return Descriptor{}, &RegistryError{
			BackendID: id,
			Code:      ErrRegistryNotFound,
			Message:   fmt.Sprintf("backend %q not found", id),
		}
	}
	return e.desc, nil
}

// List returns descriptor snapshots for all registered backends in
// registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type ordered struct {
		desc Descriptor
		seq  int
	}
	all := make([]ordered, 0, len(r.entries))
	for _, e := range r.entries {
		all = append(all, ordered{desc: e.desc, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	out := make([]Descriptor, len(all))
	for i, o := range all {
		out[i] = o.desc
	}
	return out
}

// Count returns the number of registered backends.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// MaxVariables returns the largest variable count any registered backend
// supports, healthy or not. This is the admission ceiling used by the problem
// builder. Returns 0 when no backends are registered.
func (r *Registry) MaxVariables() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	max := 0
	for _, e := range r.entries {
		if e.desc.MaxVariables > max {
			max = e.desc.MaxVariables
		}
	}
	return max
}

// HealthCheck probes every backend once and updates health flags.
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.entries))
	for id, e := range r.entries {
		adapters[id] = e.adapter
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(adapters))
	for id, adapter := range adapters {
		err := adapter.HealthCheck(ctx)
		results[id] = err
		if err != nil {
			_ = r.setHealth(id, false)
		} else {
			_ = r.setHealth(id, true)
		}
	}
	return results
}

// StartPeriodicHealthCheck starts a background goroutine that probes backends
// at the given interval until ctx is canceled.
func (r *Registry) StartPeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	r.logger.Printf("Starting periodic backend health check (every %v)", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Println("Stopping periodic backend health check")
				return
			case <-ticker.C:
				results := r.HealthCheck(ctx)
				unhealthy := 0
				for _, err := range results {
					if err != nil {
						unhealthy++
					}
				}
				if unhealthy > 0 {
					r.logger.Printf("Health check: %d healthy, %d unhealthy", len(results)-unhealthy, unhealthy)
				}
			}
		}
	}()
}

// RegistryError represents an error from registry operations.
type RegistryError struct {
	BackendID string
	Code      string
	Message   string
	Cause     error
}

// Registry error codes.
const (
	// ErrRegistryNotFound indicates the backend was not found.
	ErrRegistryNotFound = "registry_not_found"

	// ErrRegistryDuplicate indicates a backend with that id exists.
	ErrRegistryDuplicate = "registry_duplicate"

	// ErrRegistryInvalidDescriptor indicates an invalid capability descriptor.
	ErrRegistryInvalidDescriptor = "registry_invalid_descriptor"
)

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.BackendID != "" {
		return fmt.Sprintf("registry error for %q: %s", e.BackendID, e.Message)
	}
	return fmt.Sprintf("registry error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *RegistryError) Unwrap() error {
	return e.Cause
}

// NoCapableBackendError is the terminal error surfaced when even the largest
// configured backend cannot serve a request.
type NoCapableBackendError struct {
	VariableCount int
}

// Error implements the error interface.
func (e *NoCapableBackendError) Error() string {
	return fmt.Sprintf("no healthy backend can solve an instance with %d variables", e.VariableCount)
}
