// Copyright 2025 QuantumGrid
// SPDX-License-Identifier: BUSL-1.1

// Package logger provides structured JSON logging shared by all QuantumGrid
// services. Entries carry the component, the business pod that originated the
// request, and the request id so orchestration transitions can be correlated
// with ledger records downstream.
package logger
