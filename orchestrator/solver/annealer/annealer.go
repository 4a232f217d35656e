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

// Package annealer provides the solver adapter for a remote quantum-annealing
// style solving service. The adapter speaks a small JSON API and translates
// every transport or service failure into a categorical solve outcome; errors
// never cross the adapter boundary.
package annealer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/orchestrator/solver"
)

const (
	// DefaultTimeout is the default HTTP timeout when no attempt budget caps it.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxVariables is the default capacity advertised when the
	// descriptor does not override it.
	DefaultMaxVariables = 2048

	// solvePath is the annealing submission endpoint.
	solvePath = "/v1/anneal"

	// healthPath is the service liveness endpoint.
	healthPath = "/v1/health"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains configuration for the annealer adapter
type Config struct {
	ID         string        // Required: backend identifier used in routing and audit
	BaseURL    string        // Required: annealing service endpoint
	APIKey     string        // Required: service API key
	Timeout    time.Duration // Optional: HTTP timeout ceiling (default: 60s)
	MaxRetries int           // Optional: transport retries inside one attempt (default: 2)
	Client     HTTPClient    // Optional: custom HTTP client (tests)
}

// Adapter implements solver.Adapter for the remote annealing service.
type Adapter struct {
	id      string
	baseURL string
	apiKey  string
	timeout time.Duration
	client  HTTPClient
	retry   solver.RetryConfig
	breaker *solver.CircuitBreaker
}

// annealRequest is the wire format for a solve submission.
type annealRequest struct {
	InstanceID string      `json:"instance_id"`
	Variables  int         `json:"variables"`
	Weights    [][]float64 `json:"weights"`
	BudgetMs   int64       `json:"budget_ms"`
}

// annealResponse is the wire format for a solve result.
type annealResponse struct {
	Solution  []float64 `json:"solution"`
	Objective float64   `json:"objective"`
	ElapsedMs int64     `json:"elapsed_ms"`
}

// annealError is the wire format for a service error.
type annealError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a new annealer adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("annealer backend id is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("annealer base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("annealer API key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}

	retry := solver.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	return &Adapter{
		id:      cfg.ID,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client:  cfg.Client,
		retry:   retry,
		breaker: solver.NewCircuitBreaker(5, 30*time.Second),
	}, nil
}

// ID implements solver.Adapter.
func (a *Adapter) ID() string { return a.id }

// Kind implements solver.Adapter.
func (a *Adapter) Kind() solver.BackendKind { return solver.KindAnnealer }

// Solve implements solver.Adapter. The budget is a hard deadline: the HTTP
// call is issued under a context capped at budget, and a deadline overrun is
// reported as a timeout outcome. Transient transport failures are retried
// within the same budget.
func (a *Adapter) Solve(ctx context.Context, inst *problem.Instance, budget time.Duration) solver.SolveOutcome {
	if !a.breaker.Allow() {
		return solver.Failure(a.id, solver.ErrorKindConnection, "circuit open: backend recently failing")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()

	retry := a.retry
	retry.RetryIf = func(err error) bool {
		var kerr *kindError
		return errors.As(err, &kerr) && kerr.kind.Retryable()
	}

	resp, err := solver.RetryWithBackoff(attemptCtx, retry, func(c context.Context) (*annealResponse, error) {
		return a.submit(c, inst, budget)
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		a.breaker.RecordFailure()
		kind, msg := classify(err)
		out := solver.Failure(a.id, kind, msg)
		out.ElapsedMs = elapsed
		return out
	}

	if len(resp.Solution) != inst.VariableCount {
		a.breaker.RecordFailure()
		out := solver.Failure(a.id, solver.ErrorKindBadResponse,
			fmt.Sprintf("solution vector has %d entries, want %d", len(resp.Solution), inst.VariableCount))
		out.ElapsedMs = elapsed
		return out
	}

	a.breaker.RecordSuccess()
	return solver.SolveOutcome{
		BackendID:      a.id,
		Success:        true,
		SolutionVector: resp.Solution,
		ObjectiveValue: resp.Objective,
		ElapsedMs:      elapsed,
	}
}

// submit performs one HTTP round trip.
func (a *Adapter) submit(ctx context.Context, inst *problem.Instance, budget time.Duration) (*annealResponse, error) {
	reqBody, err := json.Marshal(annealRequest{
		InstanceID: inst.ID,
		Variables:  inst.VariableCount,
		Weights:    inst.Weights(),
		BudgetMs:   budget.Milliseconds(),
	})
	if err != nil {
		return nil, &kindError{kind: solver.ErrorKindInternal, msg: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+solvePath, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &kindError{kind: solver.ErrorKindInternal, msg: fmt.Sprintf("failed to create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &kindError{kind: solver.ErrorKindConnection, msg: err.Error(), cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var apiResp annealResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &kindError{kind: solver.ErrorKindBadResponse, msg: fmt.Sprintf("failed to decode response: %v", err), cause: err}
	}
	return &apiResp, nil
}

// HealthCheck implements solver.Adapter.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("annealer health check failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("annealer health check returned status %d", resp.StatusCode)
	}
	return nil
}

// parseAPIError maps a non-200 response to a categorical error.
func parseAPIError(statusCode int, body []byte) error {
	var apiErr annealError
	msg := fmt.Sprintf("annealer returned status %d", statusCode)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &kindError{kind: solver.ErrorKindQuotaExceeded, msg: msg}
	case statusCode == http.StatusPaymentRequired || apiErr.Error.Type == "quota_exceeded":
		return &kindError{kind: solver.ErrorKindQuotaExceeded, msg: msg}
	case statusCode >= 500:
		return &kindError{kind: solver.ErrorKindConnection, msg: msg}
	default:
		return &kindError{kind: solver.ErrorKindBadResponse, msg: msg}
	}
}

// classify maps a terminal error from the retry loop to an outcome category.
func classify(err error) (solver.ErrorKind, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return solver.ErrorKindTimeout, "attempt budget exceeded"
	}
	if errors.Is(err, context.Canceled) {
		return solver.ErrorKindTimeout, "attempt canceled"
	}
	var kerr *kindError
	if errors.As(err, &kerr) {
		return kerr.kind, kerr.msg
	}
	return solver.ErrorKindInternal, err.Error()
}

// kindError carries a categorical error kind through the retry loop.
type kindError struct {
	kind  solver.ErrorKind
	msg   string
	cause error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.cause }
