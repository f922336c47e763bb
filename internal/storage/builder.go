package storage

import (
	"strings"
	"time"

	"budget/internal/store"
)

// builder accumulates SQL text and bind arguments for one statement.
type builder struct {
	strings.Builder
	dialect Dialect
	args    []any
}

func (g *Gateway) builder() *builder {
	return &builder{dialect: g.dialect}
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, bindValue(v))
	return b.dialect.Placeholder(len(b.args))
}

func (b *builder) values(row store.Row, cols []string) {
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(b.arg(row[c]))
	}
}

var sqlOps = map[store.Op]string{
	store.OpEq:  " = ",
	store.OpGte: " >= ",
	store.OpLte: " <= ",
}

func (b *builder) where(filters []store.Filter) {
	for i, f := range filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		if f.Value == nil && f.Op == store.OpEq {
			b.WriteString(f.Column + " IS NULL")
			continue
		}
		b.WriteString(f.Column + sqlOps[f.Op] + b.arg(f.Value))
	}
}

func (b *builder) orderBy(order []store.Order) {
	for i, o := range order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(o.Column)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
}

func bindValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}
