package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"budget/internal/store"
)

// Gateway is the SQL implementation of store.Gateway, shared by SQLite and
// Postgres. Every write publishes its returned rows as change events.
type Gateway struct {
	db      *sql.DB
	dialect Dialect
	hub     store.Hub
	now     func() time.Time
}

var _ store.Gateway = (*Gateway)(nil)

// Open connects to the database, runs migrations and returns a gateway.
func Open(ctx context.Context, d Dialect, dsn string, hub store.Hub) (*Gateway, error) {
	if d == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(d.DriverName(), d.DSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}
	if d == SQLite {
		// One writer at a time; readers share the same connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Database ready", "dialect", d)
	return NewGateway(db, d, hub), nil
}

// NewGateway wraps an open database. The schema must already exist.
func NewGateway(db *sql.DB, d Dialect, hub store.Hub) *Gateway {
	return &Gateway{db: db, dialect: d, hub: hub, now: time.Now}
}

func (g *Gateway) Close() error {
	if g.db != nil {
		return g.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *Gateway) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := checkQuery(table, q); err != nil {
		return nil, err
	}
	b := g.builder()
	b.WriteString("SELECT * FROM " + table)
	b.where(q.Filters)
	b.orderBy(q.Order)
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}

	rows, err := g.db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

func (g *Gateway) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	if err := store.CheckTable(table); err != nil {
		return nil, err
	}
	var inserted []store.Row
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			row, err := g.withDefaults(r)
			if err != nil {
				return err
			}
			cols := sortedColumns(row)
			b := g.builder()
			b.WriteString("INSERT INTO " + table + " (" + joinCols(cols) + ") VALUES (")
			b.values(row, cols)
			b.WriteString(") RETURNING *")

			out, err := queryRows(ctx, tx, b)
			if err != nil {
				return err
			}
			inserted = append(inserted, out...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	g.publish(table, store.EventInsert, inserted)
	return inserted, nil
}

func (g *Gateway) Update(ctx context.Context, table string, patch store.Row, filters ...store.Filter) ([]store.Row, error) {
	if err := checkQuery(table, store.Where(filters...)); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, store.ErrEmptyFilter
	}
	patch = patch.Clone()
	delete(patch, "id")
	if len(patch) == 0 {
		return nil, fmt.Errorf("update %s: empty patch", table)
	}
	cols := sortedColumns(patch)
	for _, c := range cols {
		if err := store.CheckColumn(c); err != nil {
			return nil, err
		}
	}

	b := g.builder()
	b.WriteString("UPDATE " + table + " SET ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c + " = " + b.arg(patch[c]))
	}
	b.where(filters)
	b.WriteString(" RETURNING *")

	updated, err := queryRows(ctx, g.db, b)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	g.publish(table, store.EventUpdate, updated)
	return updated, nil
}

func (g *Gateway) Delete(ctx context.Context, table string, filters ...store.Filter) (int, error) {
	if err := checkQuery(table, store.Where(filters...)); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrEmptyFilter
	}
	b := g.builder()
	b.WriteString("DELETE FROM " + table)
	b.where(filters)
	b.WriteString(" RETURNING *")

	removed, err := queryRows(ctx, g.db, b)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	g.publish(table, store.EventDelete, removed)
	return len(removed), nil
}

func (g *Gateway) Upsert(ctx context.Context, table string, row store.Row, conflict ...string) (store.Row, error) {
	if err := store.CheckTable(table); err != nil {
		return nil, err
	}
	if len(conflict) == 0 {
		conflict = []string{"id"}
	}
	for _, c := range conflict {
		if err := store.CheckColumn(c); err != nil {
			return nil, err
		}
	}
	full, err := g.withDefaults(row)
	if err != nil {
		return nil, err
	}
	newID := full.String("id")
	cols := sortedColumns(full)

	b := g.builder()
	b.WriteString("INSERT INTO " + table + " (" + joinCols(cols) + ") VALUES (")
	b.values(full, cols)
	b.WriteString(") ON CONFLICT (" + joinCols(conflict) + ") DO UPDATE SET ")
	var sets []string
	for _, c := range cols {
		if c == "id" || c == "created_at" || contains(conflict, c) {
			continue
		}
		sets = append(sets, c+" = excluded."+c)
	}
	if len(sets) == 0 {
		sets = append(sets, conflict[0]+" = excluded."+conflict[0])
	}
	b.WriteString(strings.Join(sets, ", ") + " RETURNING *")

	out, err := queryRows(ctx, g.db, b)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("upsert %s: no row returned", table)
	}
	typ := store.EventUpdate
	if out[0].String("id") == newID {
		typ = store.EventInsert
	}
	g.publish(table, typ, out[:1])
	return out[0], nil
}

// Subscribe delegates to the hub; without one it is a no-op.
func (g *Gateway) Subscribe(table string, filters []store.Filter, fn func(store.ChangeEvent)) func() {
	if g.hub == nil {
		return func() {}
	}
	return g.hub.Subscribe(table, filters, fn)
}

func (g *Gateway) publish(table string, typ store.EventType, rows []store.Row) {
	if g.hub == nil {
		return
	}
	for _, evt := range store.Events(table, typ, rows, g.now().UTC()) {
		g.hub.Publish(evt)
	}
}

func (g *Gateway) withDefaults(r store.Row) (store.Row, error) {
	row := r.Clone()
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	if row.IsNull("created_at") {
		row["created_at"] = g.now().UTC()
	}
	for c := range row {
		if err := store.CheckColumn(c); err != nil {
			return nil, err
		}
	}
	return row, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows(ctx context.Context, q querier, b *builder) ([]store.Row, error) {
	rows, err := q.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (g *Gateway) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []store.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func checkQuery(table string, q store.Query) error {
	if err := store.CheckTable(table); err != nil {
		return err
	}
	return q.Validate()
}

func sortedColumns(r store.Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
