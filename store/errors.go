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
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested order or care plan does not exist.
var ErrNotFound = errors.New("not found")

// DuplicateOrderError indicates a submission matched the fingerprint of an
// existing non-failed order. Surfaced to the submitter; never retried.
type DuplicateOrderError struct {
	// ExistingOrderID is the order already carrying this fingerprint.
	ExistingOrderID string
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("duplicate order: an active order %s already exists for this patient, medication and prescriber", e.ExistingOrderID)
}

// IsDuplicateOrder reports whether err is a duplicate-gate rejection and, if
// so, returns the existing order's id.
func IsDuplicateOrder(err error) (string, bool) {
	var dup *DuplicateOrderError
	if errors.As(err, &dup) {
		return dup.ExistingOrderID, true
	}
	return "", false
}

// AlreadyProcessingError indicates the pending-only pickup guard fired: the
// order is not in 'pending' state, so this execution must drop the task.
type AlreadyProcessingError struct {
	OrderID string
	// Status is the status observed instead of 'pending'.
	Status Status
}

func (e *AlreadyProcessingError) Error() string {
	return fmt.Sprintf("order %s is not pending (status: %s); generation already in flight or finished", e.OrderID, e.Status)
}

// IsAlreadyProcessing reports whether err is the idempotency-guard conflict.
func IsAlreadyProcessing(err error) bool {
	var ap *AlreadyProcessingError
	return errors.As(err, &ap)
}

// ConflictError indicates a care plan already exists for the order. Care
// plans are immutable and 1:1 with orders, so a second creation is rejected.
type ConflictError struct {
	OrderID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %s already has a care plan", e.OrderID)
}

// IsConflict reports whether err is a care-plan uniqueness conflict.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// InvalidTransitionError indicates a lifecycle update found the order in a
// state the transition graph does not allow.
type InvalidTransitionError struct {
	OrderID string
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot transition to %s from its current status", e.OrderID, e.To)
}
