// Package memory is an in-process Gateway used by tests and the memory backend.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budget/internal/core"
	"budget/internal/store"
)

type Gateway struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	hub    store.Hub
	now    func() time.Time

	// injected write failures, keyed by table or procedure name
	failMu   sync.Mutex
	failNext map[string]error
}

var _ store.Gateway = (*Gateway)(nil)

// New creates an empty gateway publishing to hub. hub may be nil.
func New(hub store.Hub) *Gateway {
	return &Gateway{
		tables:   make(map[string][]store.Row),
		hub:      hub,
		now:      time.Now,
		failNext: make(map[string]error),
	}
}

// SetClock overrides the time source.
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

// FailNext makes the next write to table (or call of a procedure) return err.
func (g *Gateway) FailNext(table string, err error) {
	g.failMu.Lock()
	defer g.failMu.Unlock()
	g.failNext[table] = err
}

func (g *Gateway) injected(table string) error {
	g.failMu.Lock()
	defer g.failMu.Unlock()
	if err, ok := g.failNext[table]; ok {
		delete(g.failNext, table)
		return err
	}
	return nil
}

func (g *Gateway) Select(_ context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := checkQuery(table, q); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selectLocked(table, q), nil
}

func (g *Gateway) selectLocked(table string, q store.Query) []store.Row {
	var out []store.Row
	for _, r := range g.tables[table] {
		if store.MatchAll(r, q.Filters) {
			out = append(out, r.Clone())
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c, ok := store.Compare(out[i][o.Column], out[j][o.Column])
				if !ok || c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (g *Gateway) Insert(_ context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	if err := store.CheckTable(table); err != nil {
		return nil, err
	}
	if err := g.injected(table); err != nil {
		return nil, err
	}
	g.mu.Lock()
	before := g.tables[table]
	inserted := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		row, err := g.insertLocked(table, r)
		if err != nil {
			g.tables[table] = before
			g.mu.Unlock()
			return nil, err
		}
		inserted = append(inserted, row)
	}
	g.mu.Unlock()

	g.publish(table, store.EventInsert, inserted)
	return cloneAll(inserted), nil
}

func (g *Gateway) insertLocked(table string, r store.Row) (store.Row, error) {
	row := r.Clone()
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	if row.IsNull("created_at") {
		row["created_at"] = g.now().UTC()
	}
	for _, existing := range g.tables[table] {
		if existing.String("id") == row.String("id") {
			return nil, fmt.Errorf("duplicate key value violates unique constraint \"%s_pkey\"", table)
		}
		if err := uniqueViolation(table, existing, row); err != nil {
			return nil, err
		}
	}
	g.tables[table] = append(g.tables[table], row)
	return row, nil
}

func uniqueViolation(table string, existing, row store.Row) error {
	for _, key := range store.UniqueKeys[table] {
		if sameKey(existing, row, key) {
			return fmt.Errorf("duplicate key value violates unique constraint \"%s_%s_key\"", table, strings.Join(key, "_"))
		}
	}
	return nil
}

// patchLocked applies patch to the rows at idx. Nothing is written when a
// patched row would share a natural key with any other row.
func (g *Gateway) patchLocked(table string, idx []int, patch store.Row, skip ...string) ([]store.Row, error) {
	rows := g.tables[table]
	patched := make([]store.Row, len(idx))
	touched := make(map[int]bool, len(idx))
	for j, i := range idx {
		r := rows[i].Clone()
		for k, v := range patch {
			if k == "id" || slices.Contains(skip, k) {
				continue
			}
			r[k] = v
		}
		patched[j] = r
		touched[i] = true
	}
	for j, r := range patched {
		for i, existing := range rows {
			if touched[i] {
				continue
			}
			if err := uniqueViolation(table, existing, r); err != nil {
				return nil, err
			}
		}
		for _, other := range patched[:j] {
			if err := uniqueViolation(table, other, r); err != nil {
				return nil, err
			}
		}
	}
	for j, i := range idx {
		rows[i] = patched[j]
	}
	return cloneAll(patched), nil
}

func (g *Gateway) Update(_ context.Context, table string, patch store.Row, filters ...store.Filter) ([]store.Row, error) {
	if err := checkQuery(table, store.Where(filters...)); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, store.ErrEmptyFilter
	}
	if err := g.injected(table); err != nil {
		return nil, err
	}
	g.mu.Lock()
	var idx []int
	for i, r := range g.tables[table] {
		if store.MatchAll(r, filters) {
			idx = append(idx, i)
		}
	}
	updated, err := g.patchLocked(table, idx, patch)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	g.publish(table, store.EventUpdate, updated)
	return updated, nil
}

func (g *Gateway) Delete(_ context.Context, table string, filters ...store.Filter) (int, error) {
	if err := checkQuery(table, store.Where(filters...)); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrEmptyFilter
	}
	if err := g.injected(table); err != nil {
		return 0, err
	}
	g.mu.Lock()
	var kept, removed []store.Row
	for _, r := range g.tables[table] {
		if store.MatchAll(r, filters) {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	g.tables[table] = kept
	g.mu.Unlock()

	g.publish(table, store.EventDelete, removed)
	return len(removed), nil
}

func (g *Gateway) Upsert(_ context.Context, table string, row store.Row, conflict ...string) (store.Row, error) {
	if err := store.CheckTable(table); err != nil {
		return nil, err
	}
	if len(conflict) == 0 {
		conflict = []string{"id"}
	}
	if err := g.injected(table); err != nil {
		return nil, err
	}
	g.mu.Lock()
	for i, existing := range g.tables[table] {
		if !sameKey(existing, row, conflict) {
			continue
		}
		updated, err := g.patchLocked(table, []int{i}, row, "created_at")
		g.mu.Unlock()
		if err != nil {
			return nil, err
		}
		g.publish(table, store.EventUpdate, updated)
		return updated[0].Clone(), nil
	}
	inserted, err := g.insertLocked(table, row)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	g.publish(table, store.EventInsert, []store.Row{inserted})
	return inserted.Clone(), nil
}

// Call runs the get-or-create procedures under the gateway lock, which makes
// each of them atomic with respect to every other write.
func (g *Gateway) Call(_ context.Context, procedure string, params store.Row) ([]store.Row, error) {
	year, month := params.Int("year"), params.Int("month")
	if err := g.injected(procedure); err != nil {
		return nil, err
	}

	g.mu.Lock()
	var (
		out    []store.Row
		events []store.ChangeEvent
		err    error
	)
	switch procedure {
	case store.RPCGetOrCreateMonthlyIncome:
		out, events, err = g.monthlyIncomeLocked(year, month)
	case store.RPCGetOrCreateMonthlyCreditCard:
		out, events, err = g.creditCardLocked(year, month)
	case store.RPCInitializeMonthlyFixed:
		out, events, err = g.initializeFixedLocked(year, month)
	default:
		err = fmt.Errorf("%w: %q", store.ErrUnknownRPC, procedure)
	}
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, evt := range events {
		g.emit(evt)
	}
	return cloneAll(out), nil
}

func monthFilters(year, month int) []store.Filter {
	return []store.Filter{store.Eq("year", year), store.Eq("month", month)}
}

func (g *Gateway) monthlyIncomeLocked(year, month int) ([]store.Row, []store.ChangeEvent, error) {
	if rows := g.selectLocked(store.TableMonthlyIncome, store.Where(monthFilters(year, month)...)); len(rows) > 0 {
		return rows[:1], nil, nil
	}
	defaults := g.selectLocked(store.TableDefaultIncome, store.Query{Limit: 1})
	if len(defaults) == 0 {
		return nil, nil, core.ErrDefaultIncomeMissing
	}
	d := defaults[0]
	row, err := g.insertLocked(store.TableMonthlyIncome, store.Row{
		"year":          int64(year),
		"month":         int64(month),
		"lucas_income":  d.Int64("lucas_income"),
		"camila_income": d.Int64("camila_income"),
		"other_income":  d.Int64("other_income"),
	})
	if err != nil {
		return nil, nil, err
	}
	return []store.Row{row}, g.events(store.TableMonthlyIncome, store.EventInsert, row), nil
}

func (g *Gateway) creditCardLocked(year, month int) ([]store.Row, []store.ChangeEvent, error) {
	if rows := g.selectLocked(store.TableMonthlyCreditCard, store.Where(monthFilters(year, month)...)); len(rows) > 0 {
		return rows[:1], nil, nil
	}
	row, err := g.insertLocked(store.TableMonthlyCreditCard, store.Row{
		"year":   int64(year),
		"month":  int64(month),
		"amount": int64(0),
	})
	if err != nil {
		return nil, nil, err
	}
	return []store.Row{row}, g.events(store.TableMonthlyCreditCard, store.EventInsert, row), nil
}

func (g *Gateway) initializeFixedLocked(year, month int) ([]store.Row, []store.ChangeEvent, error) {
	existing := make(map[string]bool)
	for _, s := range g.selectLocked(store.TableFixedExpenseStatus, store.Where(monthFilters(year, month)...)) {
		existing[s.String("fixed_expense_id")] = true
	}
	var events []store.ChangeEvent
	fixed := g.selectLocked(store.TableFixedExpenses, store.Query{Order: []store.Order{store.Asc("created_at")}})
	for _, f := range fixed {
		if existing[f.String("id")] {
			continue
		}
		row, err := g.insertLocked(store.TableFixedExpenseStatus, store.Row{
			"year":             int64(year),
			"month":            int64(month),
			"fixed_expense_id": f.String("id"),
			"completed":        false,
			"completed_at":     nil,
		})
		if err != nil {
			return nil, nil, err
		}
		events = append(events, g.events(store.TableFixedExpenseStatus, store.EventInsert, row)...)
	}
	rows := g.selectLocked(store.TableFixedExpenseStatus,
		store.Where(monthFilters(year, month)...).OrderBy(store.Asc("created_at")))
	return rows, events, nil
}

func (g *Gateway) events(table string, typ store.EventType, rows ...store.Row) []store.ChangeEvent {
	return store.Events(table, typ, cloneAll(rows), g.now().UTC())
}

func (g *Gateway) publish(table string, typ store.EventType, rows []store.Row) {
	for _, evt := range g.events(table, typ, rows...) {
		g.emit(evt)
	}
}

func (g *Gateway) emit(evt store.ChangeEvent) {
	if g.hub != nil {
		g.hub.Publish(evt)
	}
}

// Subscribe delegates to the hub; without one it is a no-op.
func (g *Gateway) Subscribe(table string, filters []store.Filter, fn func(store.ChangeEvent)) func() {
	if g.hub == nil {
		return func() {}
	}
	return g.hub.Subscribe(table, filters, fn)
}

func checkQuery(table string, q store.Query) error {
	if err := store.CheckTable(table); err != nil {
		return err
	}
	return q.Validate()
}

func sameKey(a, b store.Row, cols []string) bool {
	for _, c := range cols {
		av, aok := a[c]
		bv, bok := b[c]
		if !aok || !bok {
			return false
		}
		if cmp, ok := store.Compare(av, bv); !ok || cmp != 0 {
			return false
		}
	}
	return true
}

func cloneAll(rows []store.Row) []store.Row {
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
