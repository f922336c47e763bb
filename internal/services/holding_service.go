package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"budget/internal/core"
	"budget/internal/repository"
)

// HistoryRecorder appends audit rows for investment and reserve value changes.
type HistoryRecorder struct {
	history *repository.HistoryRepository
}

func NewHistoryRecorder(history *repository.HistoryRepository) *HistoryRecorder {
	return &HistoryRecorder{history: history}
}

// RecordChange appends one history row. Rows are never updated or deleted.
func (r *HistoryRecorder) RecordChange(ctx context.Context, kind core.HoldingKind, entityID string, previous, next core.Money, actingUserID string) (core.HistoryEntry, error) {
	return r.history.Append(ctx, core.HistoryEntry{
		Kind:          kind,
		HoldingID:     entityID,
		PreviousValue: previous,
		NewValue:      next,
		UpdatedBy:     actingUserID,
	})
}

// History lists a holding's audit trail, most recent first.
func (r *HistoryRecorder) History(ctx context.Context, kind core.HoldingKind, entityID string) ([]core.HistoryEntry, error) {
	return r.history.List(ctx, kind, entityID)
}

// HoldingService changes investment and reserve values and records each
// change in their history.
type HoldingService struct {
	holdings *repository.HoldingRepository
	recorder *HistoryRecorder
}

func NewHoldingService(holdings *repository.HoldingRepository, recorder *HistoryRecorder) *HoldingService {
	return &HoldingService{holdings: holdings, recorder: recorder}
}

// UpdateValue sets a holding's current value and appends a history row.
//
// The two writes are not atomic. When the history append fails after the
// value was stored, the new value stays in place and the returned error wraps
// core.ErrHistoryNotRecorded together with the store error.
func (s *HoldingService) UpdateValue(ctx context.Context, kind core.HoldingKind, id string, value core.Money, userID string) (core.Holding, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Holding{}, core.ErrUnauthenticated
	}

	current, err := s.holdings.Get(ctx, kind, id)
	if err != nil {
		return core.Holding{}, err
	}

	updated, err := s.holdings.SetValue(ctx, kind, id, value)
	if err != nil {
		return core.Holding{}, err
	}

	if _, err := s.recorder.RecordChange(ctx, kind, id, current.CurrentValue, value, userID); err != nil {
		slog.ErrorContext(ctx, "Holding value changed without history",
			"kind", kind,
			"id", id,
			"previous_cents", current.CurrentValue.Cents,
			"new_cents", value.Cents,
			"user_id", userID,
			"error", err)
		return updated, fmt.Errorf("%s %s: %w", kind, id, errors.Join(core.ErrHistoryNotRecorded, err))
	}

	slog.InfoContext(ctx, "Holding value updated",
		"kind", kind,
		"id", id,
		"new_cents", value.Cents)
	return updated, nil
}
