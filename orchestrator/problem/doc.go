// Copyright 2025 QuantumGrid
// SPDX-License-Identifier: BUSL-1.1

// Package problem converts business-pod domain requests into normalized
// quadratic binary optimization instances.
//
// Each business pod registers a statically-typed Schema at startup; the
// Builder dispatches on the pod identifier, decodes the opaque payload, and
// validates the resulting weight matrix (square, symmetric, finite) before
// admitting the instance. This validation is the only admission control
// protecting solver backends from malformed input.
package problem
