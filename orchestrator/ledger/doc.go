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

// Package ledger provides the append-only, hash-chained audit ledger for
// solve requests. Every record carries a gapless sequence number, a hash of
// its own payload, and the hash of the previous record, so any range of the
// chain can be verified for tampering after the fact.
//
// Stores are pluggable behind the Store interface; PostgresStore is the
// durable production store and MemoryStore backs tests.
package ledger
