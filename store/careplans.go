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

// PlanSource records how a care plan came to exist.
type PlanSource string

const (
	// PlanSourceGenerated marks plans produced by the LLM pipeline.
	PlanSourceGenerated PlanSource = "generated"

	// PlanSourceManual marks plans uploaded by a human.
	PlanSourceManual PlanSource = "manual"
)

// CarePlan is the generated or uploaded clinical document, at most one per
// order, immutable after creation.
type CarePlan struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	Content          string     `json:"content"`
	Source           PlanSource `json:"source"`
	Provider         string     `json:"provider,omitempty"`
	Model            string     `json:"model,omitempty"`
	PromptTokens     int        `json:"prompt_tokens,omitempty"`
	CompletionTokens int        `json:"completion_tokens,omitempty"`
	GenerationMs     int64      `json:"generation_ms,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// GenerationMetadata carries adapter usage data into the stored plan.
type GenerationMetadata struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// CreateCarePlan stores the generated artifact for an order. The UNIQUE
// constraint on order_id enforces the 1:1 invariant; a second insert for the
// same order yields ConflictError.
func (s *Store) CreateCarePlan(ctx context.Context, orderID, content string, meta GenerationMetadata) (*CarePlan, error) {
	plan := &CarePlan{
		ID:               uuid.New().String(),
		OrderID:          orderID,
		Content:          content,
		Source:           PlanSourceGenerated,
		Provider:         meta.Provider,
		Model:            meta.Model,
		PromptTokens:     meta.PromptTokens,
		CompletionTokens: meta.CompletionTokens,
		GenerationMs:     meta.Duration.Milliseconds(),
	}

	query := `
		INSERT INTO care_plans (id, order_id, content, source, provider, model, prompt_tokens, completion_tokens, generation_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		plan.ID,
		plan.OrderID,
		plan.Content,
		plan.Source,
		plan.Provider,
		plan.Model,
		plan.PromptTokens,
		plan.CompletionTokens,
		plan.GenerationMs,
	).Scan(&plan.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, &ConflictError{OrderID: orderID}
		}
		return nil, fmt.Errorf("failed to create care plan: %w", err)
	}

	return plan, nil
}

// UploadCarePlan stores a manually supplied care plan and completes the
// order, bypassing the generation pipeline. Allowed from 'pending' and
// 'failed'; both steps run in one transaction so a crash cannot leave a
// completed order without its plan. A second upload yields ConflictError.
func (s *Store) UploadCarePlan(ctx context.Context, orderID, content string) (*CarePlan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	plan := &CarePlan{
		ID:      uuid.New().String(),
		OrderID: orderID,
		Content: content,
		Source:  PlanSourceManual,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO care_plans (id, order_id, content, source) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		plan.ID, plan.OrderID, plan.Content, plan.Source,
	).Scan(&plan.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch string(pqErr.Code) {
			case pqUniqueViolation:
				return nil, &ConflictError{OrderID: orderID}
			case pqForeignKeyViolation:
				return nil, ErrNotFound
			}
		}
		return nil, fmt.Errorf("failed to store uploaded care plan: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'completed', updated_at = NOW() WHERE id = $1 AND status IN ('pending', 'failed')`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete order on upload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, statusErr := s.GetStatus(ctx, orderID); statusErr != nil {
			return nil, statusErr
		}
		return nil, &InvalidTransitionError{OrderID: orderID, To: StatusCompleted}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upload: %w", err)
	}

	return plan, nil
}

// GetCarePlan loads the care plan for an order, if one exists.
func (s *Store) GetCarePlan(ctx context.Context, orderID string) (*CarePlan, error) {
	query := `
		SELECT id, order_id, content, source, provider, model, prompt_tokens, completion_tokens, generation_ms, created_at
		FROM care_plans WHERE order_id = $1
	`

	var p CarePlan
	err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&p.ID,
		&p.OrderID,
		&p.Content,
		&p.Source,
		&p.Provider,
		&p.Model,
		&p.PromptTokens,
		&p.CompletionTokens,
		&p.GenerationMs,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get care plan: %w", err)
	}

	return &p, nil
}
