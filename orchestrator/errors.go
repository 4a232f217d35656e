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
	"errors"
	"fmt"
)

// Orchestration error codes. Client errors are never retried; terminal codes
// mark the request failed in the ledger; ledger_unavailable aborts the request
// regardless of solver outcome.
const (
	// ErrCodeMalformedRequest indicates the pod payload could not be built
	// into a valid problem instance.
	ErrCodeMalformedRequest = "malformed_request"

	// ErrCodeSizeExceeded indicates the request asks for more variables than
	// any configured backend supports.
	ErrCodeSizeExceeded = "size_exceeded"

	// ErrCodeNoCapableBackend indicates no healthy backend can serve the
	// instance.
	ErrCodeNoCapableBackend = "no_capable_backend"

	// ErrCodeAllBackendsExhausted indicates every candidate failed, the
	// classical fallback included.
	ErrCodeAllBackendsExhausted = "all_backends_exhausted"

	// ErrCodeRequestTimeout indicates the total request budget ran out.
	ErrCodeRequestTimeout = "request_timeout"

	// ErrCodeLedgerUnavailable indicates a ledger append failed mid-request.
	// An un-audited result is unacceptable, so the request is aborted.
	ErrCodeLedgerUnavailable = "ledger_unavailable"
)

// OrchestrationError is the typed error surfaced to callers of the facade.
type OrchestrationError struct {
	RequestID string
	Code      string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *OrchestrationError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("orchestration error [%s] for request %s: %s", e.Code, e.RequestID, e.Message)
	}
	return fmt.Sprintf("orchestration error [%s]: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *OrchestrationError) Unwrap() error {
	return e.Cause
}

// ErrorCode extracts the orchestration error code, or "" for foreign errors.
func ErrorCode(err error) string {
	var oe *OrchestrationError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// IsClientError reports whether the error is the caller's fault and must not
// be retried by the caller as-is.
func IsClientError(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeMalformedRequest, ErrCodeSizeExceeded:
		return true
	default:
		return false
	}
}
