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

// Package solver defines the uniform backend contract for QuantumGrid solver
// adapters and the mutation-guarded registry the router selects them from.
package solver

import (
	"context"
	"time"

	"quantumgrid/platform/orchestrator/problem"
)

// BackendKind identifies the adapter implementation behind a backend.
type BackendKind string

const (
	// KindAnnealer is a remote quantum-annealing-style solving service.
	KindAnnealer BackendKind = "quantum-annealer"

	// KindClassical is the local deterministic heuristic solver. It is the
	// system's guaranteed-available backend and the advantage baseline.
	KindClassical BackendKind = "classical-fallback"
)

// ErrorKind categorizes a failed solve attempt. Backend-specific failures are
// always translated to one of these before crossing the adapter boundary.
type ErrorKind string

const (
	// ErrorKindTimeout indicates the attempt exceeded its budget.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindConnection indicates the backend was unreachable.
	ErrorKindConnection ErrorKind = "connection_error"

	// ErrorKindQuotaExceeded indicates the backend rejected the call for
	// quota or rate reasons.
	ErrorKindQuotaExceeded ErrorKind = "quota_exceeded"

	// ErrorKindBadResponse indicates the backend returned a malformed or
	// unusable response.
	ErrorKindBadResponse ErrorKind = "bad_response"

	// ErrorKindInternal indicates an unexpected adapter-side failure.
	ErrorKindInternal ErrorKind = "internal_error"
)

// Retryable reports whether an attempt that failed with this kind may succeed
// on a transport-level retry within the same budget.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindConnection, ErrorKindQuotaExceeded:
		return true
	default:
		return false
	}
}

// SolveOutcome is the uniform result of one backend attempt. It is owned
// transiently by the router and never persisted directly; only its normalized
// form reaches callers.
type SolveOutcome struct {
	BackendID      string    `json:"backend_id"`
	Success        bool      `json:"success"`
	SolutionVector []float64 `json:"solution_vector,omitempty"`
	ObjectiveValue float64   `json:"objective_value"`
	ElapsedMs      int64     `json:"elapsed_ms"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// Failure builds a failed outcome for the given backend.
func Failure(backendID string, kind ErrorKind, message string) SolveOutcome {
	return SolveOutcome{
		BackendID: backendID,
		ErrorKind: kind,
		Message:   message,
	}
}

// Descriptor is the capability record for a registered backend. The Healthy
// flag is the only field mutated after registration, and only through the
// registry.
type Descriptor struct {
	ID                string      `json:"id"`
	Kind              BackendKind `json:"kind"`
	MaxVariables      int         `json:"max_variables"`
	ExpectedLatencyMs int64       `json:"expected_latency_ms"`
	CostWeight        float64     `json:"cost_weight"`
	Healthy           bool        `json:"healthy"`
}

// Adapter wraps a specific compute backend behind the uniform solve contract.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// ID returns the unique backend identifier.
	ID() string

	// Kind returns the backend kind.
	Kind() BackendKind

	// Solve attempts the instance under budget as a hard deadline. Failures
	// never escape as errors: they are reported through the outcome's
	// ErrorKind. A budget overrun yields ErrorKindTimeout.
	Solve(ctx context.Context, inst *problem.Instance, budget time.Duration) SolveOutcome

	// HealthCheck verifies the backend is operational. Used by the
	// registry's periodic health routine.
	HealthCheck(ctx context.Context) error
}
