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
	"encoding/json"
	"fmt"
)

// Built-in pod identifiers.
const (
	PodLeadScoring = "lead-scoring"
	PodPortfolio   = "portfolio"
	PodEnergy      = "energy-scheduling"
	PodRouting     = "routing"
)

// RegisterBuiltinSchemas registers the schemas for the four first-party
// business pods.
func RegisterBuiltinSchemas(b *Builder) error {
	schemas := []Schema{
		LeadScoringSchema{},
		PortfolioSchema{},
		EnergySchema{},
		RoutingSchema{},
	}
	for _, s := range schemas {
		if err := b.RegisterSchema(s); err != nil {
			return err
		}
	}
	return nil
}

func decodePayload(pod string, payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return &BuildError{Pod: pod, Code: ErrCodeMalformed, Message: "payload is empty"}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &BuildError{
			Pod:     pod,
			Code:    ErrCodeMalformed,
			Message: fmt.Sprintf("invalid payload: %v", err),
			Cause:   err,
		}
	}
	return nil
}

// LeadScoringSchema selects a high-value, low-overlap subset of sales leads.
// The diagonal rewards each lead's standalone score (negated, since solvers
// minimize); off-diagonal entries penalize selecting leads with overlapping
// territories or accounts.
type LeadScoringSchema struct{}

type leadScoringPayload struct {
	Leads []struct {
		Score   float64   `json:"score"`
		Overlap []float64 `json:"overlap"`
	} `json:"leads"`
}

// Pod implements Schema.
func (LeadScoringSchema) Pod() string { return PodLeadScoring }

// Weights implements Schema.
func (s LeadScoringSchema) Weights(payload []byte) ([][]float64, error) {
	var p leadScoringPayload
	if err := decodePayload(s.Pod(), payload, &p); err != nil {
		return nil, err
	}
	n := len(p.Leads)
	if n == 0 {
		return nil, &BuildError{Pod: s.Pod(), Code: ErrCodeMalformed, Message: "leads are required"}
	}

	w := newMatrix(n)
	for i, lead := range p.Leads {
		if len(lead.Overlap) != n {
			return nil, &BuildError{
				Pod:     s.Pod(),
				Code:    ErrCodeMalformed,
				Message: fmt.Sprintf("lead %d overlap vector must have %d entries", i, n),
			}
		}
		w[i][i] = -lead.Score
		for j := i + 1; j < n; j++ {
			// Symmetrize: overlap is reported from both sides.
			pairwise := (lead.Overlap[j] + p.Leads[j].Overlap[i]) / 2
			w[i][j] = pairwise
			w[j][i] = pairwise
		}
	}
	return w, nil
}

// PortfolioSchema allocates a portfolio by selecting assets that maximize
// expected return against covariance risk. risk_aversion scales how strongly
// the covariance terms dominate.
type PortfolioSchema struct{}

type portfolioPayload struct {
	Assets []struct {
		ExpectedReturn float64 `json:"expected_return"`
	} `json:"assets"`
	Covariance   [][]float64 `json:"covariance"`
	RiskAversion float64     `json:"risk_aversion"`
}

// Pod implements Schema.
func (PortfolioSchema) Pod() string { return PodPortfolio }

// Weights implements Schema.
func (s PortfolioSchema) Weights(payload []byte) ([][]float64, error) {
	var p portfolioPayload
	if err := decodePayload(s.Pod(), payload, &p); err != nil {
		return nil, err
	}
	n := len(p.Assets)
	if n == 0 {
		return nil, &BuildError{Pod: s.Pod(), Code: ErrCodeMalformed, Message: "assets are required"}
	}
	if len(p.Covariance) != n {
		return nil, &BuildError{
			Pod:     s.Pod(),
			Code:    ErrCodeMalformed,
			Message: fmt.Sprintf("covariance matrix must be %dx%d", n, n),
		}
	}
	lambda := p.RiskAversion
	if lambda == 0 {
		lambda = 1.0
	}

	w := newMatrix(n)
	for i := 0; i < n; i++ {
		if len(p.Covariance[i]) != n {
			return nil, &BuildError{
				Pod:     s.Pod(),
				Code:    ErrCodeMalformed,
				Message: fmt.Sprintf("covariance matrix must be %dx%d", n, n),
			}
		}
		w[i][i] = lambda*p.Covariance[i][i] - p.Assets[i].ExpectedReturn
		for j := i + 1; j < n; j++ {
			pairwise := lambda * (p.Covariance[i][j] + p.Covariance[j][i]) / 2
			w[i][j] = pairwise
			w[j][i] = pairwise
		}
	}
	return w, nil
}

// EnergySchema schedules generation units into a delivery window: each unit's
// cost sits on the diagonal offset by a reward for covering demand, and each
// pair of units sharing a transmission segment carries a congestion penalty.
type EnergySchema struct{}

type energyPayload struct {
	Units []struct {
		Cost     float64 `json:"cost"`
		Capacity float64 `json:"capacity"`
	} `json:"units"`
	Demand     float64     `json:"demand"`
	Congestion [][]float64 `json:"congestion,omitempty"`
}

// Pod implements Schema.
func (EnergySchema) Pod() string { return PodEnergy }

// Weights implements Schema.
func (s EnergySchema) Weights(payload []byte) ([][]float64, error) {
	var p energyPayload
	if err := decodePayload(s.Pod(), payload, &p); err != nil {
		return nil, err
	}
	n := len(p.Units)
	if n == 0 {
		return nil, &BuildError{Pod: s.Pod(), Code: ErrCodeMalformed, Message: "generation units are required"}
	}
	if p.Demand <= 0 {
		return nil, &BuildError{Pod: s.Pod(), Code: ErrCodeMalformed, Message: "demand must be positive"}
	}

	w := newMatrix(n)
	for i, unit := range p.Units {
		// Cheap units covering a large share of demand get the most
		// negative diagonal.
		coverage := unit.Capacity / p.Demand
		w[i][i] = unit.Cost - coverage
		for j := i + 1; j < n; j++ {
			var pairwise float64
			if p.Congestion != nil {
				if len(p.Congestion) != n || len(p.Congestion[i]) != n || len(p.Congestion[j]) != n {
					return nil, &BuildError{
						Pod:     s.Pod(),
						Code:    ErrCodeMalformed,
						Message: fmt.Sprintf("congestion matrix must be %dx%d", n, n),
					}
				}
				pairwise = (p.Congestion[i][j] + p.Congestion[j][i]) / 2
			}
			w[i][j] = pairwise
			w[j][i] = pairwise
		}
	}
	return w, nil
}

// RoutingSchema picks a subset of candidate route legs minimizing total
// traversal cost while penalizing legs that conflict (shared vehicle, shared
// time window).
type RoutingSchema struct{}

type routingPayload struct {
	Legs []struct {
		Cost float64 `json:"cost"`
	} `json:"legs"`
	Conflicts [][]float64 `json:"conflicts"`
}

// Pod implements Schema.
func (RoutingSchema) Pod() string { return PodRouting }

// Weights implements Schema.
func (s RoutingSchema) Weights(payload []byte) ([][]float64, error) {
	var p routingPayload
	if err := decodePayload(s.Pod(), payload, &p); err != nil {
		return nil, err
	}
	n := len(p.Legs)
	if n == 0 {
		return nil, &BuildError{Pod: s.Pod(), Code: ErrCodeMalformed, Message: "route legs are required"}
	}
	if len(p.Conflicts) != n {
		return nil, &BuildError{
			Pod:     s.Pod(),
			Code:    ErrCodeMalformed,
			Message: fmt.Sprintf("conflicts matrix must be %dx%d", n, n),
		}
	}

	w := newMatrix(n)
	for i, leg := range p.Legs {
		if len(p.Conflicts[i]) != n {
			return nil, &BuildError{
				Pod:     s.Pod(),
				Code:    ErrCodeMalformed,
				Message: fmt.Sprintf("conflicts matrix must be %dx%d", n, n),
			}
		}
		w[i][i] = leg.Cost
		for j := i + 1; j < n; j++ {
			pairwise := (p.Conflicts[i][j] + p.Conflicts[j][i]) / 2
			w[i][j] = pairwise
			w[j][i] = pairwise
		}
	}
	return w, nil
}

func newMatrix(n int) [][]float64 {
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	return w
}
