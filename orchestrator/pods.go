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
	"errors"
	"time"

	"quantumgrid/platform/orchestrator/ledger"
	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/shared/logger"
)

// PodFacade is the dispatch entry point used by business pods. It translates
// an opaque domain payload into a problem instance, drives it through the
// router, and returns the normalized result with its audit reference.
type PodFacade struct {
	builder    *problem.Builder
	router     *Router
	normalizer *Normalizer
	ledger     *ledger.Ledger
	log        *logger.Logger
}

// NewPodFacade wires the facade. All collaborators are injected.
func NewPodFacade(builder *problem.Builder, router *Router, normalizer *Normalizer, led *ledger.Ledger, log *logger.Logger) *PodFacade {
	if log == nil {
		log = logger.New("pod-facade")
	}
	return &PodFacade{
		builder:    builder,
		router:     router,
		normalizer: normalizer,
		ledger:     led,
		log:        log,
	}
}

// RegisterPod registers a pod schema so its payloads can be admitted.
func (f *PodFacade) RegisterPod(schema problem.Schema) error {
	return f.builder.RegisterSchema(schema)
}

// Submit admits a pod request, routes it, and returns the normalized result.
// Admission rejections happen before any ledger traffic: a request that never
// passes validation leaves no audit trail. Once admitted, every transition is
// audited and a ledger outage aborts the request.
func (f *PodFacade) Submit(ctx context.Context, sourcePod string, payload []byte) (*NormalizedResult, error) {
	start := time.Now()

	inst, err := f.builder.Build(sourcePod, payload)
	if err != nil {
		return nil, f.buildError(sourcePod, err)
	}

	submitted, err := f.ledger.Append(ctx, ledger.Event{
		RequestID: inst.ID,
		Type:      ledger.EventSubmitted,
		Detail: map[string]interface{}{
			"source_pod":     inst.SourcePod,
			"variable_count": inst.VariableCount,
			"size_class":     string(inst.SizeClass()),
		},
	})
	if err != nil {
		return nil, &OrchestrationError{
			RequestID: inst.ID,
			Code:      ErrCodeLedgerUnavailable,
			Message:   "audit ledger append failed",
			Cause:     err,
		}
	}

	f.log.Info(sourcePod, inst.ID, "Request submitted", map[string]interface{}{
		"variable_count": inst.VariableCount,
		"size_class":     string(inst.SizeClass()),
	})

	route, err := f.router.Route(ctx, inst)
	if err != nil {
		f.recordFailure(ctx, inst.ID, err)
		return nil, err
	}

	result := f.normalizer.Normalize(ctx, inst, route)
	result.LedgerFrom = submitted.Sequence

	completed, err := f.ledger.Append(ctx, ledger.Event{
		RequestID: inst.ID,
		Type:      ledger.EventCompleted,
		BackendID: result.ChosenBackendID,
		Detail: map[string]interface{}{
			"status":             "success",
			"degraded":           result.Degraded,
			"advantage_ratio":    result.AdvantageRatio,
			"advantage_computed": result.AdvantageComputed,
			"total_elapsed_ms":   result.TotalElapsedMs,
		},
	})
	if err != nil {
		return nil, &OrchestrationError{
			RequestID: inst.ID,
			Code:      ErrCodeLedgerUnavailable,
			Message:   "audit ledger append failed",
			Cause:     err,
		}
	}
	result.LedgerTo = completed.Sequence

	elapsed := time.Since(start)
	promRequestsTotal.WithLabelValues("success").Inc()
	promRequestDuration.WithLabelValues(sourcePod).Observe(float64(elapsed.Milliseconds()))

	f.log.InfoWithDuration(sourcePod, inst.ID, "Request completed", float64(elapsed.Milliseconds()), map[string]interface{}{
		"chosen_backend":  result.ChosenBackendID,
		"degraded":        result.Degraded,
		"advantage_ratio": result.AdvantageRatio,
	})

	return result, nil
}

// QueryAudit returns the full audit trail for a request id.
func (f *PodFacade) QueryAudit(ctx context.Context, requestID string) ([]ledger.Record, error) {
	return f.ledger.Query(ctx, requestID)
}

// buildError maps builder rejections to typed orchestration errors.
func (f *PodFacade) buildError(sourcePod string, err error) error {
	code := ErrCodeMalformedRequest
	if problem.IsSizeExceeded(err) {
		code = ErrCodeSizeExceeded
	}
	promRequestsTotal.WithLabelValues("rejected").Inc()
	f.log.Warn(sourcePod, "", "Request rejected at admission", map[string]interface{}{
		"code":  code,
		"error": err.Error(),
	})
	return &OrchestrationError{Code: code, Message: err.Error(), Cause: err}
}

// recordFailure marks a terminally failed request in the ledger. A ledger
// outage error is already terminal and gets no completion record.
func (f *PodFacade) recordFailure(ctx context.Context, requestID string, cause error) {
	var oe *OrchestrationError
	if errors.As(cause, &oe) && oe.Code == ErrCodeLedgerUnavailable {
		return
	}

	_, err := f.ledger.Append(ctx, ledger.Event{
		RequestID: requestID,
		Type:      ledger.EventCompleted,
		Detail: map[string]interface{}{
			"status": "failed",
			"code":   ErrorCode(cause),
		},
	})
	if err != nil {
		f.log.ErrorWithKind("", requestID, "Failed to record request failure", ErrCodeLedgerUnavailable, err, nil)
	}
}
