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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/orchestrator/solver"
)

func normalizerInstance(t *testing.T) *problem.Instance {
	t.Helper()
	reg := solver.NewRegistry()
	registerAdapter(t, reg, succeeding("annealer-1", solver.KindAnnealer, 50), 1024, 1.0, 100)
	return testProblem(t, reg, 10)
}

func annealerRoute(elapsedMs int64) *RouteResult {
	return &RouteResult{
		Outcome: solver.SolveOutcome{
			BackendID:      "annealer-1",
			Success:        true,
			SolutionVector: []float64{1, 0, 1, 0, 1, 0, 1, 0, 1, 0},
			ObjectiveValue: -4.0,
			ElapsedMs:      elapsedMs,
		},
		Attempted:      []string{"annealer-1"},
		CandidateFirst: "annealer-1",
		TotalElapsedMs: elapsedMs + 3,
	}
}

func TestNormalize_NoBaselineAvailable(t *testing.T) {
	n := NewNormalizer(NewMemoryBaselineCache(), nil)
	inst := normalizerInstance(t)

	res := n.Normalize(context.Background(), inst, annealerRoute(50))

	assert.Equal(t, inst.ID, res.RequestID)
	assert.Equal(t, "annealer-1", res.ChosenBackendID)
	assert.False(t, res.Degraded)
	// Never fabricate an advantage number.
	assert.Equal(t, 1.0, res.AdvantageRatio)
	assert.False(t, res.AdvantageComputed)
}

func TestNormalize_InChainBaseline(t *testing.T) {
	n := NewNormalizer(NewMemoryBaselineCache(), nil)
	inst := normalizerInstance(t)

	route := &RouteResult{
		Outcome: solver.SolveOutcome{
			BackendID:      "classical-local",
			Success:        true,
			SolutionVector: make([]float64, 10),
			ElapsedMs:      120,
		},
		Attempted:      []string{"annealer-1", "classical-local"},
		CandidateFirst: "annealer-1",
	}
	baseline := route.Outcome
	route.BaselineOutcome = &baseline

	res := n.Normalize(context.Background(), inst, route)

	assert.True(t, res.Degraded)
	assert.Equal(t, []string{"annealer-1", "classical-local"}, res.FallbackChainUsed)
	// The chosen backend is the baseline itself, so the ratio is exactly 1.
	assert.Equal(t, 1.0, res.AdvantageRatio)
	assert.True(t, res.AdvantageComputed)
}

func TestNormalize_CachedBaseline(t *testing.T) {
	cache := NewMemoryBaselineCache()
	n := NewNormalizer(cache, nil)
	inst := normalizerInstance(t)

	require.NoError(t, cache.Put(context.Background(), BaselineKey(inst), 200))

	res := n.Normalize(context.Background(), inst, annealerRoute(50))

	assert.True(t, res.AdvantageComputed)
	assert.InDelta(t, 4.0, res.AdvantageRatio, 1e-9)
	assert.False(t, res.Degraded)
}

func TestNormalize_ClassicalRunRefreshesCache(t *testing.T) {
	cache := NewMemoryBaselineCache()
	n := NewNormalizer(cache, nil)
	inst := normalizerInstance(t)

	route := annealerRoute(50)
	route.Outcome.BackendID = "classical-local"
	route.Attempted = []string{"classical-local"}
	route.CandidateFirst = "classical-local"
	baseline := route.Outcome
	baseline.ElapsedMs = 90
	route.BaselineOutcome = &baseline

	n.Normalize(context.Background(), inst, route)

	ms, found, err := cache.Get(context.Background(), BaselineKey(inst))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(90), ms)
}

func TestNormalize_DegradedIdempotence(t *testing.T) {
	n := NewNormalizer(NewMemoryBaselineCache(), nil)
	inst := normalizerInstance(t)

	route := annealerRoute(50)
	route.Attempted = []string{"annealer-1", "annealer-2"}
	route.Outcome.BackendID = "annealer-2"

	first := n.Normalize(context.Background(), inst, route)
	for i := 0; i < 5; i++ {
		again := n.Normalize(context.Background(), inst, route)
		assert.Equal(t, first.Degraded, again.Degraded)
		assert.Equal(t, first.AdvantageRatio, again.AdvantageRatio)
		assert.Equal(t, first.FallbackChainUsed, again.FallbackChainUsed)
	}
	assert.True(t, first.Degraded)
}

func TestNormalize_ZeroElapsedLeavesRatioUncomputed(t *testing.T) {
	cache := NewMemoryBaselineCache()
	n := NewNormalizer(cache, nil)
	inst := normalizerInstance(t)

	require.NoError(t, cache.Put(context.Background(), BaselineKey(inst), 200))

	route := annealerRoute(0)
	res := n.Normalize(context.Background(), inst, route)

	assert.False(t, res.AdvantageComputed)
	assert.Equal(t, 1.0, res.AdvantageRatio)
}

func TestNormalize_CopiesSolutionVector(t *testing.T) {
	n := NewNormalizer(nil, nil)
	inst := normalizerInstance(t)

	route := annealerRoute(50)
	res := n.Normalize(context.Background(), inst, route)

	route.Outcome.SolutionVector[0] = 99
	assert.Equal(t, 1.0, res.SolutionVector[0])
}

func TestBaselineKey_Shape(t *testing.T) {
	inst := normalizerInstance(t)
	assert.Equal(t, "test-pod/small/10", BaselineKey(inst))
}
