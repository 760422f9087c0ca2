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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Order is one care-plan generation request.
type Order struct {
	ID                 string    `json:"id"`
	PatientID          string    `json:"patient_id"`
	ProviderNPI        string    `json:"provider_npi"`
	MedicationName     string    `json:"medication_name"`
	ClinicalNotes      string    `json:"clinical_notes"`
	Status             Status    `json:"status"`
	DuplicateCheckHash string    `json:"duplicate_check_hash"`
	Attempts           int       `json:"attempts"`
	LastError          string    `json:"last_error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PostgreSQL error codes the store maps to typed errors.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const orderColumns = `id, patient_id, provider_npi, medication_name, clinical_notes,
	       status, duplicate_check_hash, attempts, last_error, created_at, updated_at`

// CreateOrder inserts a new pending order with its precomputed fingerprint.
// The partial unique index on duplicate_check_hash makes the duplicate check
// and the insert a single atomic step: if a concurrent submission with the
// same fingerprint wins, this insert fails with unique_violation and the
// existing non-failed order is reported via DuplicateOrderError.
func (s *Store) CreateOrder(ctx context.Context, patientID, medicationName, providerNPI, clinicalNotes string) (*Order, error) {
	order := &Order{
		ID:                 uuid.New().String(),
		PatientID:          patientID,
		ProviderNPI:        providerNPI,
		MedicationName:     medicationName,
		ClinicalNotes:      clinicalNotes,
		Status:             StatusPending,
		DuplicateCheckHash: Fingerprint(patientID, medicationName, providerNPI),
	}

	query := `
		INSERT INTO orders (id, patient_id, provider_npi, medication_name, clinical_notes, status, duplicate_check_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		order.ID,
		order.PatientID,
		order.ProviderNPI,
		order.MedicationName,
		order.ClinicalNotes,
		order.Status,
		order.DuplicateCheckHash,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			existingID, lookupErr := s.findActiveOrderByHash(ctx, order.DuplicateCheckHash)
			if lookupErr != nil {
				// The winner is not visible; still report the duplicate.
				existingID = ""
			}
			return nil, &DuplicateOrderError{ExistingOrderID: existingID}
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return order, nil
}

// findActiveOrderByHash returns the id of the non-failed order carrying the
// given fingerprint.
func (s *Store) findActiveOrderByHash(ctx context.Context, hash string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE duplicate_check_hash = $1 AND status <> 'failed'`,
		hash,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetOrder loads an order by id.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o Order
	err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&o.ID,
		&o.PatientID,
		&o.ProviderNPI,
		&o.MedicationName,
		&o.ClinicalNotes,
		&o.Status,
		&o.DuplicateCheckHash,
		&o.Attempts,
		&o.LastError,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &o, nil
}

// GetStatus returns the current status of an order.
func (s *Store) GetStatus(ctx context.Context, orderID string) (Status, error) {
	var status Status
	err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get order status: %w", err)
	}
	return status, nil
}

// MarkProcessing performs the pending-only pickup: the order transitions to
// 'processing' iff it is currently 'pending', in one conditional UPDATE.
// When the guard fires (zero rows updated), the observed status is reported
// via AlreadyProcessingError so the caller can drop the task.
func (s *Store) MarkProcessing(ctx context.Context, orderID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = 'processing', updated_at = NOW() WHERE id = $1 AND status = 'pending'`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order processing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		status, statusErr := s.GetStatus(ctx, orderID)
		if statusErr != nil {
			return statusErr
		}
		return &AlreadyProcessingError{OrderID: orderID, Status: status}
	}

	return nil
}

// MarkCompleted transitions processing → completed. Called only after the
// care plan has been durably stored.
func (s *Store) MarkCompleted(ctx context.Context, orderID string) error {
	return s.conditionalTransition(ctx, orderID, StatusProcessing, StatusCompleted, "")
}

// MarkFailed transitions processing → failed, recording the terminal error
// kind for operational tooling. Submitters only ever see the status.
func (s *Store) MarkFailed(ctx context.Context, orderID, reason string) error {
	return s.conditionalTransition(ctx, orderID, StatusProcessing, StatusFailed, reason)
}

func (s *Store) conditionalTransition(ctx context.Context, orderID string, from, to Status, lastError string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, last_error = $2, updated_at = NOW() WHERE id = $3 AND status = $4`,
		to, lastError, orderID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to transition order to %s: %w", to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return &InvalidTransitionError{OrderID: orderID, To: to}
	}

	return nil
}

// IncrementAttempts records one generation attempt and the error that ended
// it. Bookkeeping only; it does not affect the state machine.
func (s *Store) IncrementAttempts(ctx context.Context, orderID, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET attempts = attempts + 1, last_error = $1, updated_at = NOW() WHERE id = $2`,
		lastError, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}
