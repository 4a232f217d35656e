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
	"math"
	"time"
)

// SizeClass buckets an instance by decision-variable count. Per-attempt solve
// budgets are configured per class.
type SizeClass string

const (
	// SizeSmall covers instances up to SmallThreshold variables.
	SizeSmall SizeClass = "small"

	// SizeMedium covers instances up to MediumThreshold variables.
	SizeMedium SizeClass = "medium"

	// SizeLarge covers everything above MediumThreshold.
	SizeLarge SizeClass = "large"
)

// Variable-count thresholds for size classification.
const (
	SmallThreshold  = 32
	MediumThreshold = 256
)

// Instance is a normalized quadratic binary optimization instance: a symmetric
// weight matrix over binary decision variables. The diagonal encodes linear
// terms, off-diagonal entries encode pairwise terms. Instances are immutable
// after construction; they are safe to share by reference across goroutines.
//
// Instances are created by Builder.Build, which is the only admission control
// protecting solver backends from malformed input.
type Instance struct {
	ID            string
	SourcePod     string
	VariableCount int
	SubmittedAt   time.Time

	weights [][]float64
}

// Weight returns the weight at (i, j). The matrix is symmetric, so
// Weight(i, j) == Weight(j, i).
func (in *Instance) Weight(i, j int) float64 {
	return in.weights[i][j]
}

// Weights returns a defensive copy of the weight matrix.
func (in *Instance) Weights() [][]float64 {
	out := make([][]float64, len(in.weights))
	for i, row := range in.weights {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// SizeClass derives the size class from the variable count.
func (in *Instance) SizeClass() SizeClass {
	switch {
	case in.VariableCount <= SmallThreshold:
		return SizeSmall
	case in.VariableCount <= MediumThreshold:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// Objective evaluates x^T W x for a binary solution vector. Used by the
// classical solver and by result normalization.
func (in *Instance) Objective(solution []float64) float64 {
	total := 0.0
	for i := 0; i < in.VariableCount; i++ {
		if solution[i] == 0 {
			continue
		}
		total += in.weights[i][i] * solution[i] * solution[i]
		for j := i + 1; j < in.VariableCount; j++ {
			if solution[j] != 0 {
				total += 2 * in.weights[i][j] * solution[i] * solution[j]
			}
		}
	}
	return total
}

// validateWeights checks that the matrix is square over n variables, symmetric,
// and contains only finite values.
func validateWeights(n int, weights [][]float64) error {
	if len(weights) != n {
		return &BuildError{
			Code:    ErrCodeMalformed,
			Message: "weight matrix row count does not match variable count",
		}
	}
	for i, row := range weights {
		if len(row) != n {
			return &BuildError{
				Code:    ErrCodeMalformed,
				Message: "weight matrix is not square",
			}
		}
		for j, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return &BuildError{
					Code:    ErrCodeMalformed,
					Message: "weight matrix contains non-finite values",
				}
			}
			if j < i && weights[j][i] != w {
				return &BuildError{
					Code:    ErrCodeMalformed,
					Message: "weight matrix is not symmetric",
				}
			}
		}
	}
	return nil
}
