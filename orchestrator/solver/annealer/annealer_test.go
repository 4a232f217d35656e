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

package annealer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/orchestrator/solver"
)

// MockHTTPClient is a mock implementation of HTTPClient
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testInstance(t *testing.T) *problem.Instance {
	t.Helper()
	b := problem.NewBuilder(capacity(64))
	require.NoError(t, b.RegisterSchema(passthroughSchema{}))
	inst, err := b.Build("test-pod", nil)
	require.NoError(t, err)
	return inst
}

type capacity int

func (c capacity) MaxVariables() int { return int(c) }

type passthroughSchema struct{}

func (passthroughSchema) Pod() string { return "test-pod" }

func (passthroughSchema) Weights(payload []byte) ([][]float64, error) {
	return [][]float64{
		{-1.0, 0.5},
		{0.5, -2.0},
	}, nil
}

func newTestAdapter(t *testing.T, client HTTPClient) *Adapter {
	t.Helper()
	a, err := New(Config{
		ID:         "annealer-test",
		BaseURL:    "https://anneal.example.com",
		APIKey:     "test-api-key",
		MaxRetries: 1,
		Client:     client,
	})
	require.NoError(t, err)
	return a
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BaseURL: "https://x", APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{ID: "a", APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{ID: "a", BaseURL: "https://x"})
	assert.Error(t, err)

	a, err := New(Config{ID: "a", BaseURL: "https://x", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "a", a.ID())
	assert.Equal(t, solver.KindAnnealer, a.Kind())
	assert.Equal(t, DefaultTimeout, a.timeout)
}

func TestSolve_Success(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodPost &&
			strings.HasSuffix(req.URL.Path, "/v1/anneal") &&
			req.Header.Get("Authorization") == "Bearer test-api-key"
	})).Return(jsonResponse(200, `{"solution": [1, 0], "objective": -1.0, "elapsed_ms": 42}`), nil).Once()

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), time.Second)

	require.True(t, outcome.Success)
	assert.Equal(t, "annealer-test", outcome.BackendID)
	assert.Equal(t, []float64{1, 0}, outcome.SolutionVector)
	assert.Equal(t, -1.0, outcome.ObjectiveValue)
	assert.Empty(t, outcome.ErrorKind)
	mockClient.AssertExpectations(t)
}

func TestSolve_SendsInstanceOnTheWire(t *testing.T) {
	var captured annealRequest
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(0).(*http.Request)
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &captured)
	}).Return(jsonResponse(200, `{"solution": [0, 1], "objective": -2.0, "elapsed_ms": 5}`), nil).Once()

	adapter := newTestAdapter(t, mockClient)
	inst := testInstance(t)
	adapter.Solve(context.Background(), inst, 750*time.Millisecond)

	assert.Equal(t, inst.ID, captured.InstanceID)
	assert.Equal(t, 2, captured.Variables)
	assert.Equal(t, int64(750), captured.BudgetMs)
	require.Len(t, captured.Weights, 2)
	assert.Equal(t, 0.5, captured.Weights[0][1])
}

func TestSolve_QuotaExceeded(t *testing.T) {
	mockClient := new(MockHTTPClient)
	// Quota errors are retried once with MaxRetries=1; each call needs a
	// fresh response body.
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(429, `{"error": {"type": "rate_limit", "message": "too many requests"}}`), nil).Once()
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(429, `{"error": {"type": "rate_limit", "message": "too many requests"}}`), nil).Once()

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), time.Second)

	require.False(t, outcome.Success)
	assert.Equal(t, solver.ErrorKindQuotaExceeded, outcome.ErrorKind)
	assert.Equal(t, "too many requests", outcome.Message)
	mockClient.AssertExpectations(t)
}

func TestSolve_ServerErrorRetriedThenFails(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(503, `{"error": {"type": "overloaded", "message": "try later"}}`), nil).Once()
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(503, `{"error": {"type": "overloaded", "message": "try later"}}`), nil).Once()

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), time.Second)

	require.False(t, outcome.Success)
	assert.Equal(t, solver.ErrorKindConnection, outcome.ErrorKind)
	mockClient.AssertExpectations(t)
}

func TestSolve_ServerErrorThenSuccess(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(500, `{}`), nil).Once()
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(200, `{"solution": [1, 1], "objective": -2.0, "elapsed_ms": 7}`), nil).Once()

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), time.Second)

	require.True(t, outcome.Success)
	mockClient.AssertExpectations(t)
}

func TestSolve_ConnectionRefused(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused")).
		Twice()

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), time.Second)

	require.False(t, outcome.Success)
	assert.Equal(t, solver.ErrorKindConnection, outcome.ErrorKind)
}

func TestSolve_BadResponseNotRetried(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(200, `not json at all`), nil).
		Once()

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), time.Second)

	require.False(t, outcome.Success)
	assert.Equal(t, solver.ErrorKindBadResponse, outcome.ErrorKind)
	mockClient.AssertExpectations(t)
}

func TestSolve_WrongSolutionLength(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(200, `{"solution": [1, 0, 1], "objective": 0, "elapsed_ms": 3}`), nil).
		Once()

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), time.Second)

	require.False(t, outcome.Success)
	assert.Equal(t, solver.ErrorKindBadResponse, outcome.ErrorKind)
}

func TestSolve_BudgetTimeout(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(0).(*http.Request)
		<-req.Context().Done()
	}).Return(nil, context.DeadlineExceeded)

	adapter := newTestAdapter(t, mockClient)
	outcome := adapter.Solve(context.Background(), testInstance(t), 20*time.Millisecond)

	require.False(t, outcome.Success)
	assert.Equal(t, solver.ErrorKindTimeout, outcome.ErrorKind)
}

func TestSolve_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))

	adapter := newTestAdapter(t, mockClient)
	inst := testInstance(t)

	// Each Solve records one breaker failure; the breaker trips at 5.
	for i := 0; i < 5; i++ {
		outcome := adapter.Solve(context.Background(), inst, 100*time.Millisecond)
		require.False(t, outcome.Success)
	}

	outcome := adapter.Solve(context.Background(), inst, 100*time.Millisecond)
	require.False(t, outcome.Success)
	assert.Contains(t, outcome.Message, "circuit open")
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
			return req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, "/v1/health")
		})).Return(jsonResponse(200, `{"status": "ok"}`), nil).Once()

		adapter := newTestAdapter(t, mockClient)
		assert.NoError(t, adapter.HealthCheck(context.Background()))
	})

	t.Run("unhealthy status", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(jsonResponse(503, `{}`), nil).Once()

		adapter := newTestAdapter(t, mockClient)
		assert.Error(t, adapter.HealthCheck(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(nil, errors.New("no route to host")).Once()

		adapter := newTestAdapter(t, mockClient)
		assert.Error(t, adapter.HealthCheck(context.Background()))
	})
}
