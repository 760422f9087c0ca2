// Copyright 2025 AxonFlow
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

// Package service exposes the HTTP boundary of the care-plan pipeline:
// order submission, status, care plan fetch and download, manual upload,
// health, and Prometheus metrics.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"axonflow/careplan/llm"
	"axonflow/careplan/metrics"
	"axonflow/careplan/queue"
	"axonflow/careplan/shared/logger"
	"axonflow/careplan/store"
)

// Server holds the handler dependencies.
type Server struct {
	store    *store.Store
	queue    *queue.Queue
	provider llm.Provider
	log      *logger.Logger
}

// NewServer wires the HTTP handlers to their collaborators.
func NewServer(st *store.Store, q *queue.Queue, provider llm.Provider) *Server {
	return &Server{
		store:    st,
		queue:    q,
		provider: provider,
		log:      logger.New("service"),
	}
}

// Routes builds the router. Exposed separately from Run so tests can drive
// the handlers through httptest without a listener.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/orders", s.createOrderHandler).Methods("POST")
	r.HandleFunc("/api/orders/{id}", s.getOrderHandler).Methods("GET")
	r.HandleFunc("/api/orders/{id}/status", s.orderStatusHandler).Methods("GET")
	r.HandleFunc("/api/orders/{id}/careplan", s.getCarePlanHandler).Methods("GET")
	r.HandleFunc("/api/orders/{id}/careplan/download", s.downloadCarePlanHandler).Methods("GET")
	r.HandleFunc("/api/orders/{id}/careplan", s.uploadCarePlanHandler).Methods("POST")

	r.Use(s.instrument)

	return r
}

// instrument records per-endpoint request metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		metrics.APIRequestTotal.WithLabelValues(r.Method, endpoint, fmt.Sprintf("%d", rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// CreateOrderRequest is the order submission payload.
type CreateOrderRequest struct {
	PatientID      string `json:"patient_id"`
	MedicationName string `json:"medication_name"`
	ProviderNPI    string `json:"provider_npi"`
	ClinicalNotes  string `json:"clinical_notes,omitempty"`
}

func (req *CreateOrderRequest) validate() error {
	if strings.TrimSpace(req.PatientID) == "" {
		return fmt.Errorf("patient_id is required")
	}
	if strings.TrimSpace(req.MedicationName) == "" {
		return fmt.Errorf("medication_name is required")
	}
	npi := strings.TrimSpace(req.ProviderNPI)
	if npi == "" {
		return fmt.Errorf("provider_npi is required")
	}
	if len(npi) != 10 {
		return fmt.Errorf("provider_npi must be 10 digits")
	}
	for _, c := range npi {
		if c < '0' || c > '9' {
			return fmt.Errorf("provider_npi must be 10 digits")
		}
	}
	return nil
}

func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.OrderCreatedTotal.WithLabelValues("validation_error").Inc()
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		metrics.OrderCreatedTotal.WithLabelValues("validation_error").Inc()
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := s.store.CreateOrder(r.Context(), req.PatientID, req.MedicationName, req.ProviderNPI, req.ClinicalNotes)
	if err != nil {
		var dup *store.DuplicateOrderError
		if errors.As(err, &dup) {
			metrics.OrderCreatedTotal.WithLabelValues("duplicate_blocked").Inc()
			metrics.DuplicateDetectionTotal.WithLabelValues("order", "exact_match").Inc()
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":             "An active order already exists for this patient, medication, and prescriber",
				"existing_order_id": dup.ExistingOrderID,
			})
			return
		}
		metrics.OrderCreatedTotal.WithLabelValues("error").Inc()
		s.log.ErrorWithErr("", "Order creation failed", err, nil)
		sendErrorResponse(w, "Failed to create order", http.StatusInternalServerError)
		return
	}

	queued := true
	if err := s.queue.Enqueue(r.Context(), order.ID); err != nil {
		queued = false
		metrics.QueuedTotal.WithLabelValues("error").Inc()
		s.log.ErrorWithErr(order.ID, "Failed to queue generation task", err, nil)
	} else {
		metrics.QueuedTotal.WithLabelValues("success").Inc()
	}

	metrics.OrderCreatedTotal.WithLabelValues("success").Inc()
	metrics.DuplicateDetectionTotal.WithLabelValues("order", "none").Inc()
	s.log.Info(order.ID, "Order created", map[string]interface{}{
		"patient_id": order.PatientID,
		"medication": order.MedicationName,
		"queued":     queued,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order":  order,
		"queued": queued,
	})
}

func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	order, err := s.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendErrorResponse(w, "Order not found", http.StatusNotFound)
			return
		}
		sendErrorResponse(w, "Failed to load order", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (s *Server) orderStatusHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	order, err := s.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendErrorResponse(w, "Order not found", http.StatusNotFound)
			return
		}
		sendErrorResponse(w, "Failed to load order", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"order_id": order.ID,
		"status":   order.Status,
		"attempts": order.Attempts,
	}
	if order.LastError != "" {
		resp["last_error"] = order.LastError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getCarePlanHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	plan, err := s.store.GetCarePlan(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendErrorResponse(w, "No care plan for this order", http.StatusNotFound)
			return
		}
		sendErrorResponse(w, "Failed to load care plan", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) downloadCarePlanHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	plan, err := s.store.GetCarePlan(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendErrorResponse(w, "No care plan for this order", http.StatusNotFound)
			return
		}
		sendErrorResponse(w, "Failed to load care plan", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=care_plan_%s.txt", orderID))
	fmt.Fprint(w, plan.Content)
}

// UploadCarePlanRequest is the manual upload payload.
type UploadCarePlanRequest struct {
	Content string `json:"content"`
}

func (s *Server) uploadCarePlanHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req UploadCarePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		sendErrorResponse(w, "content is required", http.StatusBadRequest)
		return
	}

	plan, err := s.store.UploadCarePlan(r.Context(), orderID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			sendErrorResponse(w, "Order not found", http.StatusNotFound)
		case store.IsConflict(err):
			sendErrorResponse(w, "A care plan already exists for this order", http.StatusConflict)
		default:
			var invalid *store.InvalidTransitionError
			if errors.As(err, &invalid) {
				sendErrorResponse(w, "Order is being processed; upload not allowed", http.StatusConflict)
				return
			}
			s.log.ErrorWithErr(orderID, "Care plan upload failed", err, nil)
			sendErrorResponse(w, "Failed to upload care plan", http.StatusInternalServerError)
		}
		return
	}

	s.log.Info(orderID, "Manual care plan uploaded", nil)
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"database": s.store.Ping(r.Context()) == nil,
		"queue":    s.queue.Ping(r.Context()) == nil,
	}

	status := "healthy"
	code := http.StatusOK
	for _, ok := range components {
		if !ok {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"service":    "careplan-generator",
		"components": components,
		"provider":   s.provider.Name(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// Utility functions
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		encodeLog.Error("", "Error encoding response", map[string]interface{}{"error": err.Error()})
	}
}

var encodeLog = logger.New("service")
