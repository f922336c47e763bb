package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"budget/internal/core"
	"budget/internal/store"
)

type CategoryRepository struct{ base }

func toCategory(r store.Row) core.Category {
	return core.Category{
		ID:        r.String("id"),
		Name:      r.String("name"),
		CreatedAt: r.Time("created_at"),
	}
}

// List returns every category ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]core.Category, error) {
	rows, err := r.gw.Select(ctx, store.TableCategories, store.Query{}.OrderBy(store.Asc("name")))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCategory(row))
	}
	return out, nil
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (core.Category, error) {
	row, err := r.getByID(ctx, store.TableCategories, id)
	if err != nil {
		return core.Category{}, err
	}
	return toCategory(row), nil
}

func (r *CategoryRepository) Create(ctx context.Context, name string) (core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	rows, err := r.gw.Insert(ctx, store.TableCategories, store.Row{
		"id":         r.newID(),
		"name":       c.Name,
		"created_at": r.now().UTC(),
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return toCategory(rows[0]), nil
}

func (r *CategoryRepository) Rename(ctx context.Context, id, name string) (core.Category, error) {
	c := core.Category{ID: id, Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	row, err := r.updateByID(ctx, store.TableCategories, id, store.Row{"name": c.Name})
	if err != nil {
		return core.Category{}, fmt.Errorf("rename category: %w", err)
	}
	return toCategory(row), nil
}

// Delete removes a category that no fixed or variable expense refers to.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	for _, table := range []string{store.TableFixedExpenses, store.TableVariableExpenses} {
		rows, err := r.gw.Select(ctx, table, store.Query{Filters: []store.Filter{store.Eq("category_id", id)}, Limit: 1})
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if len(rows) > 0 {
			slog.WarnContext(ctx, "Refusing to delete referenced category", "category_id", id, "referenced_by", table)
			return fmt.Errorf("delete category %s: %w", id, core.ErrCategoryInUse)
		}
	}
	if err := r.deleteByID(ctx, store.TableCategories, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// ensureCategory fails with ErrMissingCategory when id does not name a category.
func ensureCategory(ctx context.Context, b base, id string) error {
	rows, err := b.gw.Select(ctx, store.TableCategories, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: category %s does not exist", core.ErrMissingCategory, id)
	}
	return nil
}
