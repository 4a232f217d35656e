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

package classical

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/orchestrator/solver"
)

type capacity int

func (c capacity) MaxVariables() int { return int(c) }

type matrixSchema struct {
	weights [][]float64
}

func (matrixSchema) Pod() string { return "test-pod" }

func (s matrixSchema) Weights(payload []byte) ([][]float64, error) {
	return s.weights, nil
}

func buildInstance(t *testing.T, weights [][]float64) *problem.Instance {
	t.Helper()
	b := problem.NewBuilder(capacity(len(weights)))
	require.NoError(t, b.RegisterSchema(matrixSchema{weights: weights}))
	inst, err := b.Build("test-pod", nil)
	require.NoError(t, err)
	return inst
}

// diagTestMatrix builds an n-variable matrix with alternating attractive and
// repulsive diagonal terms plus weak couplings, big enough to make the local
// search do real work.
func diagTestMatrix(n int) [][]float64 {
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			w[i][i] = -float64(i + 1)
		} else {
			w[i][i] = float64(i)
		}
		for j := i + 1; j < n; j++ {
			coupling := 0.1 * float64((i+j)%3)
			w[i][j] = coupling
			w[j][i] = coupling
		}
	}
	return w
}

func TestNew_Defaults(t *testing.T) {
	a := New(Config{})
	assert.Equal(t, DefaultID, a.ID())
	assert.Equal(t, solver.KindClassical, a.Kind())

	named := New(Config{ID: "classical-b"})
	assert.Equal(t, "classical-b", named.ID())
}

func TestSolve_AlwaysSucceeds(t *testing.T) {
	a := New(Config{})
	inst := buildInstance(t, diagTestMatrix(20))

	outcome := a.Solve(context.Background(), inst, time.Second)

	require.True(t, outcome.Success)
	assert.Equal(t, DefaultID, outcome.BackendID)
	assert.Len(t, outcome.SolutionVector, 20)
	assert.Empty(t, outcome.ErrorKind)
	for i, v := range outcome.SolutionVector {
		assert.Contains(t, []float64{0, 1}, v, "variable %d", i)
	}
}

func TestSolve_ObjectiveMatchesSolution(t *testing.T) {
	a := New(Config{})
	inst := buildInstance(t, diagTestMatrix(12))

	outcome := a.Solve(context.Background(), inst, time.Second)

	require.True(t, outcome.Success)
	assert.InDelta(t, inst.Objective(outcome.SolutionVector), outcome.ObjectiveValue, 1e-9)
}

func TestSolve_FindsNegativeDiagonal(t *testing.T) {
	// A single strongly attractive variable with no couplings must be set.
	weights := [][]float64{
		{-5, 0, 0},
		{0, 3, 0},
		{0, 0, -1},
	}
	a := New(Config{})
	inst := buildInstance(t, weights)

	outcome := a.Solve(context.Background(), inst, time.Second)

	require.True(t, outcome.Success)
	assert.Equal(t, []float64{1, 0, 1}, outcome.SolutionVector)
	assert.InDelta(t, -6.0, outcome.ObjectiveValue, 1e-9)
}

func TestSolve_Deterministic(t *testing.T) {
	a := New(Config{})
	inst := buildInstance(t, diagTestMatrix(40))

	first := a.Solve(context.Background(), inst, time.Second)
	require.True(t, first.Success)

	for run := 0; run < 3; run++ {
		t.Run(fmt.Sprintf("run_%d", run), func(t *testing.T) {
			again := a.Solve(context.Background(), inst, time.Second)
			require.True(t, again.Success)
			assert.Equal(t, first.SolutionVector, again.SolutionVector)
			assert.Equal(t, first.ObjectiveValue, again.ObjectiveValue)
		})
	}
}

func TestSolve_TinyBudgetStillSucceeds(t *testing.T) {
	a := New(Config{})
	inst := buildInstance(t, diagTestMatrix(60))

	outcome := a.Solve(context.Background(), inst, time.Nanosecond)

	// Budget expiry stops improvement, never the result.
	require.True(t, outcome.Success)
	assert.Len(t, outcome.SolutionVector, 60)
}

func TestSolve_NeverWorseThanEmptyAssignment(t *testing.T) {
	a := New(Config{})
	inst := buildInstance(t, diagTestMatrix(30))

	outcome := a.Solve(context.Background(), inst, time.Second)

	require.True(t, outcome.Success)
	zero := make([]float64, inst.VariableCount)
	assert.LessOrEqual(t, outcome.ObjectiveValue, inst.Objective(zero))
}

func TestHealthCheck(t *testing.T) {
	a := New(Config{})
	assert.NoError(t, a.HealthCheck(context.Background()))
}
