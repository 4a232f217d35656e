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

package problem

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Schema converts a pod-specific domain payload into a weight matrix.
// One schema is registered per business pod at startup; dispatch is keyed by
// the pod identifier, so payload resolution is fully static.
type Schema interface {
	// Pod returns the business pod identifier this schema handles.
	Pod() string

	// Weights decodes the opaque payload and returns the symmetric weight
	// matrix for the instance. Implementations return a *BuildError with
	// ErrCodeMalformed for missing or invalid fields.
	Weights(payload []byte) ([][]float64, error)
}

// CapacityProvider reports the largest variable count any configured backend
// can serve. The backend registry implements this.
type CapacityProvider interface {
	MaxVariables() int
}

// Builder validates domain requests and produces immutable problem instances.
// It is safe for concurrent use.
type Builder struct {
	schemas  map[string]Schema
	capacity CapacityProvider
	mu       sync.RWMutex
}

// NewBuilder creates a Builder with admission control against the given
// capacity provider.
func NewBuilder(capacity CapacityProvider) *Builder {
	return &Builder{
		schemas:  make(map[string]Schema),
		capacity: capacity,
	}
}

// RegisterSchema adds a pod schema. Registering a duplicate pod is an error.
func (b *Builder) RegisterSchema(schema Schema) error {
	if schema == nil {
		return &BuildError{Code: ErrCodeMalformed, Message: "schema cannot be nil"}
	}
	pod := schema.Pod()
	if pod == "" {
		return &BuildError{Code: ErrCodeMalformed, Message: "schema pod identifier is required"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.schemas[pod]; exists {
		return &BuildError{
			Pod:     pod,
			Code:    ErrCodeMalformed,
			Message: fmt.Sprintf("schema for pod %q already registered", pod),
		}
	}
	b.schemas[pod] = schema
	return nil
}

// Pods returns the registered pod identifiers.
func (b *Builder) Pods() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pods := make([]string, 0, len(b.schemas))
	for pod := range b.schemas {
		pods = append(pods, pod)
	}
	return pods
}

// Build converts a domain request into a validated problem instance.
//
// It fails with ErrCodeMalformed when the pod is unknown or the payload is
// missing required fields, and with ErrCodeSizeExceeded when the request asks
// for more decision variables than any configured backend supports. The matrix
// is checked for squareness, symmetry and numeric finiteness before the
// instance is admitted; nothing downstream re-validates.
func (b *Builder) Build(sourcePod string, payload []byte) (*Instance, error) {
	if sourcePod == "" {
		return nil, &BuildError{Code: ErrCodeMalformed, Message: "source pod is required"}
	}

	b.mu.RLock()
	schema, ok := b.schemas[sourcePod]
	b.mu.RUnlock()
	if !ok {
		return nil, &BuildError{
			Pod:     sourcePod,
			Code:    ErrCodeMalformed,
			Message: fmt.Sprintf("no schema registered for pod %q", sourcePod),
		}
	}

	weights, err := schema.Weights(payload)
	if err != nil {
		if be, ok := err.(*BuildError); ok {
			if be.Pod == "" {
				be.Pod = sourcePod
			}
			return nil, be
		}
		return nil, &BuildError{
			Pod:     sourcePod,
			Code:    ErrCodeMalformed,
			Message: fmt.Sprintf("payload resolution failed: %v", err),
			Cause:   err,
		}
	}

	n := len(weights)
	if n < 1 {
		return nil, &BuildError{
			Pod:     sourcePod,
			Code:    ErrCodeMalformed,
			Message: "instance must have at least one decision variable",
		}
	}

	if err := validateWeights(n, weights); err != nil {
		if be, ok := err.(*BuildError); ok {
			be.Pod = sourcePod
		}
		return nil, err
	}

	if max := b.capacity.MaxVariables(); n > max {
		return nil, &BuildError{
			Pod:     sourcePod,
			Code:    ErrCodeSizeExceeded,
			Message: fmt.Sprintf("instance has %d variables but the largest configured backend supports %d", n, max),
		}
	}

	// Copy rows so callers cannot mutate the admitted matrix.
	owned := make([][]float64, n)
	for i, row := range weights {
		owned[i] = append([]float64(nil), row...)
	}

	return &Instance{
		ID:            uuid.New().String(),
		SourcePod:     sourcePod,
		VariableCount: n,
		SubmittedAt:   time.Now().UTC(),
		weights:       owned,
	}, nil
}

// BuildError represents a request admission failure.
type BuildError struct {
	Pod     string
	Code    string
	Message string
	Cause   error
}

// Build error codes.
const (
	// ErrCodeMalformed indicates a missing or invalid request field.
	ErrCodeMalformed = "malformed_request"

	// ErrCodeSizeExceeded indicates no configured backend can hold the instance.
	ErrCodeSizeExceeded = "size_exceeded"
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Pod != "" {
		return fmt.Sprintf("problem build failed for pod %q: %s", e.Pod, e.Message)
	}
	return fmt.Sprintf("problem build failed: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// IsMalformed reports whether err is a malformed-request build error.
func IsMalformed(err error) bool {
	be, ok := err.(*BuildError)
	return ok && be.Code == ErrCodeMalformed
}

// IsSizeExceeded reports whether err is a size-exceeded build error.
func IsSizeExceeded(err error) bool {
	be, ok := err.(*BuildError)
	return ok && be.Code == ErrCodeSizeExceeded
}
