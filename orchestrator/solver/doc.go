// Copyright 2025 QuantumGrid
// SPDX-License-Identifier: BUSL-1.1

// Package solver contains the uniform Adapter contract every compute backend
// implements, the categorical failure taxonomy, the process-wide backend
// Registry consulted during routing, and the shared retry and circuit-breaker
// helpers used by remote adapters.
//
// Concrete adapters live in the annealer and classical sub-packages.
package solver
