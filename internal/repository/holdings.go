package repository

import (
	"context"
	"fmt"
	"strings"

	"budget/internal/core"
	"budget/internal/store"
)

// HoldingRepository serves investments and reserves, which share one shape.
type HoldingRepository struct{ base }

func holdingTable(kind core.HoldingKind) (string, error) {
	switch kind {
	case core.KindInvestment:
		return store.TableInvestments, nil
	case core.KindReserve:
		return store.TableReserves, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
}

func toHolding(kind core.HoldingKind, r store.Row) core.Holding {
	h := core.Holding{
		ID:           r.String("id"),
		Kind:         kind,
		Category:     r.String("category"),
		Name:         r.String("name"),
		CurrentValue: money(r, "current_value"),
		LastUpdated:  r.Time("last_updated"),
		CreatedAt:    r.Time("created_at"),
	}
	if kind == core.KindReserve {
		if cents := r.Int64Ptr("target_value"); cents != nil {
			h.TargetValue = &core.Money{Cents: *cents}
		}
	}
	return h
}

func holdingRow(h core.Holding) store.Row {
	row := store.Row{
		"category":      strings.TrimSpace(h.Category),
		"name":          strings.TrimSpace(h.Name),
		"current_value": h.CurrentValue.Cents,
	}
	if h.Kind == core.KindReserve {
		row["target_value"] = nil
		if h.TargetValue != nil {
			row["target_value"] = h.TargetValue.Cents
		}
	}
	return row
}

// List returns the holdings of one kind ordered by name.
func (r *HoldingRepository) List(ctx context.Context, kind core.HoldingKind) ([]core.Holding, error) {
	table, err := holdingTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.gw.Select(ctx, table, store.Query{}.OrderBy(store.Asc("name")))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	out := make([]core.Holding, 0, len(rows))
	for _, row := range rows {
		out = append(out, toHolding(kind, row))
	}
	return out, nil
}

func (r *HoldingRepository) Get(ctx context.Context, kind core.HoldingKind, id string) (core.Holding, error) {
	table, err := holdingTable(kind)
	if err != nil {
		return core.Holding{}, err
	}
	row, err := r.getByID(ctx, table, id)
	if err != nil {
		return core.Holding{}, err
	}
	return toHolding(kind, row), nil
}

func (r *HoldingRepository) Create(ctx context.Context, h core.Holding) (core.Holding, error) {
	if err := h.Validate(); err != nil {
		return core.Holding{}, err
	}
	table, _ := holdingTable(h.Kind)
	now := r.now().UTC()
	row := holdingRow(h)
	row["id"] = r.newID()
	row["last_updated"] = now
	row["created_at"] = now
	rows, err := r.gw.Insert(ctx, table, row)
	if err != nil {
		return core.Holding{}, fmt.Errorf("create %s: %w", h.Kind, err)
	}
	return toHolding(h.Kind, rows[0]), nil
}

// SetValue changes current_value and stamps last_updated. History is the
// caller's concern.
func (r *HoldingRepository) SetValue(ctx context.Context, kind core.HoldingKind, id string, value core.Money) (core.Holding, error) {
	if err := value.ValidateNonNegative(); err != nil {
		return core.Holding{}, err
	}
	table, err := holdingTable(kind)
	if err != nil {
		return core.Holding{}, err
	}
	row, err := r.updateByID(ctx, table, id, store.Row{
		"current_value": value.Cents,
		"last_updated":  r.now().UTC(),
	})
	if err != nil {
		return core.Holding{}, fmt.Errorf("set %s value: %w", kind, err)
	}
	return toHolding(kind, row), nil
}

func (r *HoldingRepository) Delete(ctx context.Context, kind core.HoldingKind, id string) error {
	table, err := holdingTable(kind)
	if err != nil {
		return err
	}
	if err := r.deleteByID(ctx, table, id); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return nil
}

// HistoryRepository is append-only: it exposes no update or delete.
type HistoryRepository struct{ base }

func historyTable(kind core.HoldingKind) (table, fk string, err error) {
	switch kind {
	case core.KindInvestment:
		return store.TableInvestmentHistory, "investment_id", nil
	case core.KindReserve:
		return store.TableReserveHistory, "reserve_id", nil
	}
	return "", "", fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
}

func (r *HistoryRepository) Append(ctx context.Context, e core.HistoryEntry) (core.HistoryEntry, error) {
	table, fk, err := historyTable(e.Kind)
	if err != nil {
		return core.HistoryEntry{}, err
	}
	if strings.TrimSpace(e.UpdatedBy) == "" {
		return core.HistoryEntry{}, core.ErrUnauthenticated
	}
	rows, err := r.gw.Insert(ctx, table, store.Row{
		"id":             r.newID(),
		fk:               e.HoldingID,
		"previous_value": e.PreviousValue.Cents,
		"new_value":      e.NewValue.Cents,
		"updated_by":     e.UpdatedBy,
		"created_at":     r.now().UTC(),
	})
	if err != nil {
		return core.HistoryEntry{}, fmt.Errorf("append %s: %w", table, err)
	}
	return toHistory(e.Kind, fk, rows[0]), nil
}

// List returns a holding's history, most recent first.
func (r *HistoryRepository) List(ctx context.Context, kind core.HoldingKind, holdingID string) ([]core.HistoryEntry, error) {
	table, fk, err := historyTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.gw.Select(ctx, table, store.Where(store.Eq(fk, holdingID)).OrderBy(store.Desc("created_at")))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	out := make([]core.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toHistory(kind, fk, row))
	}
	return out, nil
}

func toHistory(kind core.HoldingKind, fk string, r store.Row) core.HistoryEntry {
	return core.HistoryEntry{
		ID:            r.String("id"),
		Kind:          kind,
		HoldingID:     r.String(fk),
		PreviousValue: money(r, "previous_value"),
		NewValue:      money(r, "new_value"),
		UpdatedBy:     r.String("updated_by"),
		CreatedAt:     r.Time("created_at"),
	}
}
