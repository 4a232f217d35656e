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

// Package main is the entry point for the QuantumGrid Orchestrator service.
//
// The Orchestrator accepts optimization requests from business pods,
// normalizes them into quadratic binary instances, and dispatches them to
// solver backends under a retry/fallback policy:
// - Admits and validates pod payloads (lead scoring, portfolio, energy, routing)
// - Selects backends by cost and latency, with the classical solver as the
//   guaranteed terminal fallback
// - Records every orchestration decision in a hash-chained audit ledger
// - Returns normalized results with a measured advantage ratio
//
// Usage:
//
//	./orchestrator
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8083)
//	QG_CONFIG - path to the YAML configuration file (optional)
//	LEDGER_DSN - PostgreSQL connection string for the audit ledger (optional)
//	REDIS_URL - Redis URL for the baseline cache (optional)
package main

import (
	"quantumgrid/platform/orchestrator"
)

func main() {
	orchestrator.Run()
}
