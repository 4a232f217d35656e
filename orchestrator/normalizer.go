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

package orchestrator

import (
	"context"

	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/shared/logger"
)

// NormalizedResult is the canonical, immutable result returned to callers.
// LedgerFrom and LedgerTo bracket the request's audit trail.
type NormalizedResult struct {
	RequestID         string    `json:"request_id"`
	ChosenBackendID   string    `json:"chosen_backend_id"`
	FallbackChainUsed []string  `json:"fallback_chain_used"`
	SolutionVector    []float64 `json:"solution_vector"`
	ObjectiveValue    float64   `json:"objective_value"`
	AdvantageRatio    float64   `json:"advantage_ratio"`
	AdvantageComputed bool      `json:"advantage_computed"`
	Degraded          bool      `json:"degraded"`
	TotalElapsedMs    int64     `json:"total_elapsed_ms"`
	LedgerFrom        uint64    `json:"ledger_from"`
	LedgerTo          uint64    `json:"ledger_to"`
}

// Normalizer converts a routing result into the canonical form and maintains
// the baseline cache behind the advantage ratio.
type Normalizer struct {
	cache BaselineCache
	log   *logger.Logger
}

// NewNormalizer creates a normalizer. cache may be nil, in which case ratios
// are computed only from in-chain classical runs.
func NewNormalizer(cache BaselineCache, log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.New("normalizer")
	}
	return &Normalizer{cache: cache, log: log}
}

// Normalize builds the canonical result. The advantage ratio is the classical
// baseline elapsed time divided by the chosen backend's elapsed time; it is
// computed only when a real baseline exists, either the classical run from
// this request's own chain or a cached run for the same instance shape. When
// no baseline exists the ratio stays 1.0 and AdvantageComputed stays false.
// Normalization is a pure function of its inputs apart from cache traffic:
// the same route result always normalizes to the same degraded flag and
// ratio.
func (n *Normalizer) Normalize(ctx context.Context, inst *problem.Instance, route *RouteResult) *NormalizedResult {
	res := &NormalizedResult{
		RequestID:         inst.ID,
		ChosenBackendID:   route.Outcome.BackendID,
		FallbackChainUsed: append([]string(nil), route.Attempted...),
		SolutionVector:    append([]float64(nil), route.Outcome.SolutionVector...),
		ObjectiveValue:    route.Outcome.ObjectiveValue,
		AdvantageRatio:    1.0,
		Degraded:          route.Outcome.BackendID != route.CandidateFirst,
		TotalElapsedMs:    route.TotalElapsedMs,
	}

	baselineMs, ok := n.baselineFor(ctx, inst, route)
	if ok && route.Outcome.ElapsedMs > 0 {
		res.AdvantageRatio = float64(baselineMs) / float64(route.Outcome.ElapsedMs)
		res.AdvantageComputed = true
	}

	return res
}

// baselineFor resolves the classical baseline elapsed time for this request,
// refreshing the cache when the chain itself produced a classical run.
func (n *Normalizer) baselineFor(ctx context.Context, inst *problem.Instance, route *RouteResult) (int64, bool) {
	if route.BaselineOutcome != nil {
		ms := route.BaselineOutcome.ElapsedMs
		if n.cache != nil {
			if err := n.cache.Put(ctx, BaselineKey(inst), ms); err != nil {
				n.log.Warn(inst.SourcePod, inst.ID, "Baseline cache write failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
		return ms, true
	}

	if n.cache == nil {
		return 0, false
	}
	ms, found, err := n.cache.Get(ctx, BaselineKey(inst))
	if err != nil {
		n.log.Warn(inst.SourcePod, inst.ID, "Baseline cache read failed", map[string]interface{}{
			"error": err.Error(),
		})
		return 0, false
	}
	return ms, found
}
