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
	"time"

	"quantumgrid/platform/orchestrator/ledger"
	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/orchestrator/solver"
	"quantumgrid/platform/shared/logger"
)

// Budgets holds the per-attempt and total wall-clock budgets. Per-attempt
// budgets are keyed by instance size class.
type Budgets struct {
	SmallAttempt  time.Duration
	MediumAttempt time.Duration
	LargeAttempt  time.Duration
	Total         time.Duration
}

// DefaultBudgets returns the production defaults.
func DefaultBudgets() Budgets {
	return Budgets{
		SmallAttempt:  5 * time.Second,
		MediumAttempt: 15 * time.Second,
		LargeAttempt:  60 * time.Second,
		Total:         120 * time.Second,
	}
}

// AttemptBudget returns the per-attempt budget for a size class.
func (b Budgets) AttemptBudget(class problem.SizeClass) time.Duration {
	switch class {
	case problem.SizeSmall:
		return b.SmallAttempt
	case problem.SizeMedium:
		return b.MediumAttempt
	default:
		return b.LargeAttempt
	}
}

// Router drives one request through the backend candidate chain. State machine
// per request: Submitted, then Attempting(i), ending in Succeeded or
// Exhausted. Attempts run sequentially so ledger ordering matches causal
// order; there is no speculative parallel execution.
type Router struct {
	registry *solver.Registry
	ledger   *ledger.Ledger
	budgets  Budgets
	log      *logger.Logger
}

// NewRouter creates a router. Dependencies are injected, never looked up from
// globals.
func NewRouter(registry *solver.Registry, led *ledger.Ledger, budgets Budgets, log *logger.Logger) *Router {
	if log == nil {
		log = logger.New("router")
	}
	return &Router{registry: registry, ledger: led, budgets: budgets, log: log}
}

// RouteResult carries the successful outcome plus the routing provenance the
// normalizer needs.
type RouteResult struct {
	Outcome         solver.SolveOutcome
	Attempted       []string
	CandidateFirst  string
	BaselineOutcome *solver.SolveOutcome
	TotalElapsedMs  int64
}

// Route selects backends for the instance and attempts them in order until
// one succeeds. Every transition is appended to the ledger before the router
// moves on; a failed append aborts the request with ErrCodeLedgerUnavailable.
func (r *Router) Route(ctx context.Context, inst *problem.Instance) (*RouteResult, error) {
	candidates, err := r.registry.ListCapable(inst.VariableCount)
	if err != nil {
		return nil, &OrchestrationError{
			RequestID: inst.ID,
			Code:      ErrCodeNoCapableBackend,
			Message:   err.Error(),
			Cause:     err,
		}
	}

	// The classical adapter always goes last regardless of cost ordering.
	// Guaranteed completion is worth more than optimal backend choice.
	candidates = classicalLast(candidates)

	attemptBudget := r.budgets.AttemptBudget(inst.SizeClass())
	start := time.Now()

	res := &RouteResult{CandidateFirst: candidates[0].Descriptor.ID}

	capExpired := false
	for i := 0; i < len(candidates); i++ {
		cand := candidates[i]

		if !capExpired && r.budgets.Total-time.Since(start) <= 0 {
			// Total cap exhausted. Only untried classical candidates may
			// still run; without one the request is out of time.
			if untriedClassicalIndex(candidates, i) < 0 {
				promRequestsTotal.WithLabelValues("timeout").Inc()
				return nil, &OrchestrationError{
					RequestID: inst.ID,
					Code:      ErrCodeRequestTimeout,
					Message:   "total request budget exceeded with no guaranteed backend left",
				}
			}
			capExpired = true
		}
		if capExpired && cand.Descriptor.Kind != solver.KindClassical {
			continue
		}

		budget := attemptBudget
		if !capExpired {
			if remaining := r.budgets.Total - time.Since(start); remaining < budget {
				budget = remaining
			}
		}

		res.Attempted = append(res.Attempted, cand.Descriptor.ID)

		detail := map[string]interface{}{
			"backend_kind":      string(cand.Descriptor.Kind),
			"attempt_budget_ms": budget.Milliseconds(),
			"position":          len(res.Attempted) - 1,
		}
		if capExpired {
			detail["short_circuit"] = true
		}
		if _, err := r.appendEvent(ctx, inst.ID, ledger.Event{
			RequestID: inst.ID,
			Type:      ledger.EventBackendAttempt,
			BackendID: cand.Descriptor.ID,
			Detail:    detail,
		}); err != nil {
			return nil, err
		}

		r.log.Info(inst.SourcePod, inst.ID, "Backend attempt", map[string]interface{}{
			"backend_id":        cand.Descriptor.ID,
			"attempt_budget_ms": budget.Milliseconds(),
		})

		outcome := cand.Adapter.Solve(ctx, inst, budget)
		promSolveCalls.WithLabelValues(cand.Descriptor.ID, solveStatus(outcome)).Inc()

		if outcome.Success {
			if _, err := r.appendEvent(ctx, inst.ID, ledger.Event{
				RequestID: inst.ID,
				Type:      ledger.EventBackendSuccess,
				BackendID: cand.Descriptor.ID,
				Detail: map[string]interface{}{
					"elapsed_ms":      outcome.ElapsedMs,
					"objective_value": outcome.ObjectiveValue,
				},
			}); err != nil {
				return nil, err
			}

			res.Outcome = outcome
			if cand.Descriptor.Kind == solver.KindClassical {
				baseline := outcome
				res.BaselineOutcome = &baseline
			}
			res.TotalElapsedMs = time.Since(start).Milliseconds()
			return res, nil
		}

		if _, err := r.appendEvent(ctx, inst.ID, ledger.Event{
			RequestID: inst.ID,
			Type:      ledger.EventBackendFailure,
			BackendID: cand.Descriptor.ID,
			ErrorKind: string(outcome.ErrorKind),
			Detail:    map[string]interface{}{"message": outcome.Message},
		}); err != nil {
			return nil, err
		}

		r.log.ErrorWithKind(inst.SourcePod, inst.ID, "Backend attempt failed",
			string(outcome.ErrorKind), nil, map[string]interface{}{
				"backend_id": cand.Descriptor.ID,
			})

		nextIdx := i + 1
		if capExpired {
			nextIdx = untriedClassicalIndex(candidates, i+1)
		} else if nextIdx >= len(candidates) {
			nextIdx = -1
		}
		if nextIdx >= 0 {
			promFallbacksTotal.Inc()
			if _, err := r.appendEvent(ctx, inst.ID, ledger.Event{
				RequestID: inst.ID,
				Type:      ledger.EventFallbackTriggered,
				BackendID: cand.Descriptor.ID,
				Detail: map[string]interface{}{
					"next_backend": candidates[nextIdx].Descriptor.ID,
				},
			}); err != nil {
				return nil, err
			}
		}
	}

	promRequestsTotal.WithLabelValues("exhausted").Inc()
	return nil, &OrchestrationError{
		RequestID: inst.ID,
		Code:      ErrCodeAllBackendsExhausted,
		Message:   "all candidate backends failed",
	}
}

// appendEvent appends to the ledger, translating a store outage into the
// fatal orchestration error.
func (r *Router) appendEvent(ctx context.Context, requestID string, ev ledger.Event) (*ledger.Record, error) {
	rec, err := r.ledger.Append(ctx, ev)
	if err != nil {
		promRequestsTotal.WithLabelValues("ledger_error").Inc()
		return nil, &OrchestrationError{
			RequestID: requestID,
			Code:      ErrCodeLedgerUnavailable,
			Message:   "audit ledger append failed",
			Cause:     err,
		}
	}
	return rec, nil
}

// classicalLast stable-partitions classical-kind candidates behind everything
// else, preserving registry order within each partition.
func classicalLast(candidates []solver.Candidate) []solver.Candidate {
	out := make([]solver.Candidate, 0, len(candidates))
	var classical []solver.Candidate
	for _, c := range candidates {
		if c.Descriptor.Kind == solver.KindClassical {
			classical = append(classical, c)
		} else {
			out = append(out, c)
		}
	}
	return append(out, classical...)
}

// untriedClassicalIndex returns the index of the first classical candidate at
// or after position from, or -1.
func untriedClassicalIndex(candidates []solver.Candidate, from int) int {
	for j := from; j < len(candidates); j++ {
		if candidates[j].Descriptor.Kind == solver.KindClassical {
			return j
		}
	}
	return -1
}

func solveStatus(o solver.SolveOutcome) string {
	if o.Success {
		return "success"
	}
	return string(o.ErrorKind)
}
