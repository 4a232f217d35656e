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

// Package orchestrator drives optimization requests from business pods
// through the backend candidate chain: admission, routing with fallback,
// result normalization, and hash-chained audit logging.
//
// Run wires the production process: config, ledger store, registry, adapters,
// facade, and the HTTP surface. The HTTP layer is a thin translation to the
// facade contract; all orchestration semantics live below it.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"quantumgrid/platform/orchestrator/ledger"
	"quantumgrid/platform/orchestrator/problem"
	"quantumgrid/platform/orchestrator/solver"
	"quantumgrid/platform/orchestrator/solver/annealer"
	"quantumgrid/platform/orchestrator/solver/classical"
	"quantumgrid/platform/shared/logger"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumgrid_orchestrator_requests_total",
			Help: "Total number of requests processed by the orchestrator",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quantumgrid_orchestrator_request_duration_milliseconds",
			Help:    "End-to-end request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"pod"},
	)
	promSolveCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumgrid_orchestrator_solve_calls_total",
			Help: "Total number of backend solve attempts",
		},
		[]string{"backend", "status"},
	)
	promFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantumgrid_orchestrator_fallbacks_total",
			Help: "Total number of fallback transitions between backends",
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promSolveCalls)
	prometheus.MustRegister(promFallbacksTotal)
}

// Process-wide components, wired once by initializeComponents.
var (
	appLogger *logger.Logger
	registry  *solver.Registry
	auditLog  *ledger.Ledger
	facade    *PodFacade
)

// Run starts the QuantumGrid orchestrator.
//
// Environment variables:
//   - QG_CONFIG: path to the YAML config file (optional)
//   - PORT: HTTP listen port (default 8083)
//   - LEDGER_DSN: PostgreSQL DSN for the durable ledger store (optional;
//     in-memory store when unset)
//   - REDIS_URL: baseline cache Redis URL (optional; in-memory cache when unset)
func Run() {
	log.Println("Starting QuantumGrid Orchestrator...")

	cfg := loadRuntimeConfig()
	if err := initializeComponents(cfg); err != nil {
		log.Fatalf("Failed to initialize components: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := 30 * time.Second
	if cfg.Server.HealthCheckIntervalMs > 0 {
		interval = time.Duration(cfg.Server.HealthCheckIntervalMs) * time.Millisecond
	}
	registry.StartPeriodicHealthCheck(ctx, interval)

	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Health check
	r.HandleFunc("/health", healthHandler).Methods("GET")

	// Metrics
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Main submission endpoint
	r.HandleFunc("/api/v1/submit", submitHandler).Methods("POST")

	// Backend administration
	r.HandleFunc("/api/v1/backends", listBackendsHandler).Methods("GET")
	r.HandleFunc("/api/v1/backends", registerBackendHandler).Methods("POST")
	r.HandleFunc("/api/v1/backends/{id}", deregisterBackendHandler).Methods("DELETE")
	r.HandleFunc("/api/v1/backends/{id}/health", setBackendHealthHandler).Methods("PUT")

	// Audit trail
	r.HandleFunc("/api/v1/audit/verify", auditVerifyHandler).Methods("GET")
	r.HandleFunc("/api/v1/audit/{request_id}", auditQueryHandler).Methods("GET")

	port := getEnv("PORT", "8083")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(r),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		log.Printf("QuantumGrid Orchestrator listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down QuantumGrid Orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

// loadRuntimeConfig loads the YAML config when QG_CONFIG is set, then applies
// env-var fallbacks for the settings deployments usually override.
func loadRuntimeConfig() *Config {
	cfg := &Config{}
	if path := os.Getenv("QG_CONFIG"); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	if dsn := os.Getenv("LEDGER_DSN"); dsn != "" {
		cfg.Ledger.Driver = "postgres"
		cfg.Ledger.DSN = dsn
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Baseline.RedisURL = url
	}
	return cfg
}

func initializeComponents(cfg *Config) error {
	appLogger = logger.New("orchestrator")

	store, err := openLedgerStore(cfg.Ledger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	auditLog, err = ledger.New(ctx, store)
	if err != nil {
		return err
	}

	registry = solver.NewRegistry()
	if err := registerConfiguredBackends(cfg.Backends); err != nil {
		return err
	}

	builder := problem.NewBuilder(registry)
	if err := problem.RegisterBuiltinSchemas(builder); err != nil {
		return err
	}

	cache, err := openBaselineCache(cfg.Baseline)
	if err != nil {
		return err
	}

	router := NewRouter(registry, auditLog, cfg.Budgets.ToBudgets(), appLogger)
	normalizer := NewNormalizer(cache, appLogger)
	facade = NewPodFacade(builder, router, normalizer, auditLog, appLogger)

	log.Printf("Components initialized: %d backends, ledger driver %s", registry.Count(), cfg.Ledger.Driver)
	return nil
}

func openLedgerStore(cfg LedgerConfig) (ledger.Store, error) {
	if cfg.Driver != "postgres" || cfg.DSN == "" {
		log.Println("No ledger DSN configured, using in-memory ledger store")
		return ledger.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	return ledger.NewPostgresStore(db)
}

func openBaselineCache(cfg BaselineConfig) (BaselineCache, error) {
	if cfg.RedisURL == "" {
		return NewMemoryBaselineCache(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.TTLMs) * time.Millisecond
	return NewRedisBaselineCache(redis.NewClient(opts), ttl), nil
}

// registerConfiguredBackends builds adapters from config at startup. A process
// with no configured classical backend still gets the default classical
// adapter so admission and routing keep working.
func registerConfiguredBackends(backends []BackendConfig) error {
	classicalSeen := false

	for _, bc := range backends {
		if !bc.Enabled {
			continue
		}
		if err := registerBackend(bc); err != nil {
			if errors.Is(err, errUnknownBackendKind) {
				log.Printf("Skipping backend %s: unknown kind %q", bc.ID, bc.Kind)
				continue
			}
			return err
		}
		if solver.BackendKind(bc.Kind) == solver.KindClassical {
			classicalSeen = true
		}
	}

	if !classicalSeen {
		adapter := classical.New(classical.Config{})
		desc := solver.Descriptor{
			ID:                adapter.ID(),
			Kind:              solver.KindClassical,
			MaxVariables:      problem.MediumThreshold,
			ExpectedLatencyMs: 500,
			CostWeight:        0.1,
			Healthy:           true,
		}
		if err := registry.Register(desc, adapter); err != nil {
			return err
		}
	}
	return nil
}

var errUnknownBackendKind = errors.New("unknown backend kind")

// registerBackend builds the adapter for one backend config and registers it.
// Shared by startup loading and the admin registration endpoint; the default
// classical fallback is applied only at startup.
func registerBackend(bc BackendConfig) error {
	var adapter solver.Adapter
	switch solver.BackendKind(bc.Kind) {
	case solver.KindAnnealer:
		a, err := annealer.New(annealer.Config{
			ID:         bc.ID,
			BaseURL:    bc.BaseURL,
			APIKey:     bc.APIKey,
			Timeout:    time.Duration(bc.TimeoutMs) * time.Millisecond,
			MaxRetries: bc.MaxRetries,
		})
		if err != nil {
			return err
		}
		adapter = a
	case solver.KindClassical:
		adapter = classical.New(classical.Config{ID: bc.ID})
	default:
		return fmt.Errorf("%w %q for backend %s", errUnknownBackendKind, bc.Kind, bc.ID)
	}

	desc := solver.Descriptor{
		ID:                bc.ID,
		Kind:              solver.BackendKind(bc.Kind),
		MaxVariables:      bc.MaxVariables,
		ExpectedLatencyMs: bc.ExpectedLatencyMs,
		CostWeight:        bc.CostWeight,
		Healthy:           true,
	}
	return registry.Register(desc, adapter)
}

// --- HTTP handlers ---

func healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":          "healthy",
		"backends":        registry.Count(),
		"ledger_sequence": auditLog.LastSequence(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, status)
}

type submitRequest struct {
	SourcePod string          `json:"source_pod"`
	Payload   json.RawMessage `json:"payload"`
}

func submitHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendErrorResponse(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		sendErrorResponse(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.SourcePod == "" {
		sendErrorResponse(w, "source_pod is required", http.StatusBadRequest)
		return
	}

	result, err := facade.Submit(r.Context(), req.SourcePod, req.Payload)
	if err != nil {
		sendErrorResponse(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func listBackendsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"backends": registry.List()})
}

type registerBackendRequest struct {
	BackendConfig
}

func registerBackendHandler(w http.ResponseWriter, r *http.Request) {
	var req registerBackendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := registerBackend(req.BackendConfig); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered", "id": req.ID})
}

func deregisterBackendHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := registry.Deregister(id); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deregistered", "id": id})
}

type setHealthRequest struct {
	Healthy bool `json:"healthy"`
}

func setBackendHealthHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req setHealthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var err error
	if req.Healthy {
		err = registry.MarkHealthy(id)
	} else {
		err = registry.MarkUnhealthy(id)
	}
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "healthy": req.Healthy})
}

func auditQueryHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	records, err := facade.QueryAudit(r.Context(), requestID)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"records":    records,
	})
}

func auditVerifyHandler(w http.ResponseWriter, r *http.Request) {
	from, err := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		sendErrorResponse(w, "from must be a positive integer", http.StatusBadRequest)
		return
	}
	to, err := strconv.ParseUint(r.URL.Query().Get("to"), 10, 64)
	if err != nil {
		sendErrorResponse(w, "to must be a positive integer", http.StatusBadRequest)
		return
	}

	ok, err := auditLog.VerifyChain(r.Context(), from, to)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"from": from, "to": to, "valid": ok})
}

// statusForError maps orchestration error codes to HTTP status codes.
func statusForError(err error) int {
	switch ErrorCode(err) {
	case ErrCodeMalformedRequest:
		return http.StatusBadRequest
	case ErrCodeSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case ErrCodeNoCapableBackend:
		return http.StatusUnprocessableEntity
	case ErrCodeAllBackendsExhausted:
		return http.StatusBadGateway
	case ErrCodeRequestTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
