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

// Package classical provides the local deterministic heuristic solver. It is
// the system's guaranteed-available backend: for any admitted instance it
// produces a feasible solution, degrading gracefully to its best-so-far answer
// when the attempt budget runs out. Its runs also serve as the classical
// baseline for advantage-ratio computation.
package classical

import (
	"context"
	"time"

	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/orchestrator/solver"
)

// DefaultID is the backend identifier used when the config does not set one.
const DefaultID = "classical-local"

// budgetCheckStride bounds how many local-search moves run between deadline
// checks.
const budgetCheckStride = 64

// Config contains configuration for the classical adapter.
type Config struct {
	ID string // Optional: backend identifier (default: classical-local)
}

// Adapter implements solver.Adapter with a greedy construction followed by
// steepest-descent single-flip local search. The algorithm uses no randomness:
// identical instances always produce identical solutions, which routing and
// normalization tests rely on.
type Adapter struct {
	id string
}

// New creates a new classical adapter.
func New(cfg Config) *Adapter {
	if cfg.ID == "" {
		cfg.ID = DefaultID
	}
	return &Adapter{id: cfg.ID}
}

// ID implements solver.Adapter.
func (a *Adapter) ID() string { return a.id }

// Kind implements solver.Adapter.
func (a *Adapter) Kind() solver.BackendKind { return solver.KindClassical }

// HealthCheck implements solver.Adapter. The local solver has no external
// dependency and is always operational.
func (a *Adapter) HealthCheck(ctx context.Context) error { return nil }

// Solve implements solver.Adapter. Minimizes x^T W x over binary x.
//
// Construction assigns x[i]=1 whenever the variable's greedy gain against the
// current partial solution is negative. Improvement then repeatedly applies
// the single best variable flip until no flip lowers the objective or the
// budget expires. The budget never causes a failure: expiry stops improvement
// and the current solution is returned.
func (a *Adapter) Solve(ctx context.Context, inst *problem.Instance, budget time.Duration) solver.SolveOutcome {
	start := time.Now()
	deadline := start.Add(budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	n := inst.VariableCount
	x := make([]float64, n)

	// Greedy construction in variable order.
	for i := 0; i < n; i++ {
		if flipGain(inst, x, i) < 0 {
			x[i] = 1
		}
	}

	// Steepest-descent single-flip improvement.
	moves := 0
	for {
		bestGain := 0.0
		bestVar := -1
		for i := 0; i < n; i++ {
			if gain := flipGain(inst, x, i); gain < bestGain {
				bestGain = gain
				bestVar = i
			}
		}
		if bestVar < 0 {
			break
		}
		x[bestVar] = 1 - x[bestVar]

		moves++
		if moves%budgetCheckStride == 0 && (time.Now().After(deadline) || ctx.Err() != nil) {
			break
		}
	}

	return solver.SolveOutcome{
		BackendID:      a.id,
		Success:        true,
		SolutionVector: x,
		ObjectiveValue: inst.Objective(x),
		ElapsedMs:      time.Since(start).Milliseconds(),
	}
}

// flipGain returns the objective delta from flipping variable i against the
// current assignment.
func flipGain(inst *problem.Instance, x []float64, i int) float64 {
	delta := inst.Weight(i, i)
	for j := range x {
		if j != i && x[j] != 0 {
			delta += 2 * inst.Weight(i, j)
		}
	}
	if x[i] != 0 {
		// Flipping 1 -> 0 removes the variable's contribution.
		return -delta
	}
	return delta
}
