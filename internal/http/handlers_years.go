package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"budget/internal/budget"
	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/export"
	"budget/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type matrixResponse struct {
	Year          int                    `json:"year"`
	Sort          budget.MatrixSort      `json:"sort"`
	Months        []string               `json:"months"`
	Rows          []core.CategoryExpense `json:"rows"`
	MonthlyTotals map[string]core.Money  `json:"monthly_totals"`
}

func (s *Server) comparison(ctx context.Context, year int) ([]core.MonthlyComparison, error) {
	return cache.Load(s.views, cache.ViewKey(year, "comparison"), func() ([]core.MonthlyComparison, error) {
		return s.deps.Engine.Comparison(ctx, year)
	})
}

func (s *Server) matrix(ctx context.Context, year int, order budget.MatrixSort) ([]core.CategoryExpense, error) {
	key := cache.ViewKey(year, fmt.Sprintf("categories:%s:%s", order.Field, order.Direction))
	return cache.Load(s.views, key, func() ([]core.CategoryExpense, error) {
		return s.deps.Engine.CategoryMatrix(ctx, year, order)
	})
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	year, err := PathYear(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	rows, err := s.comparison(r.Context(), year)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleCategoryMatrix serves the matrix ordered by ?sort=name|total|average
// and ?dir=asc|desc; unknown values fall back to total descending.
func (s *Server) handleCategoryMatrix(w http.ResponseWriter, r *http.Request) {
	year, err := PathYear(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	q := r.URL.Query()
	order := budget.ParseMatrixSort(q.Get("sort"), q.Get("dir"))
	rows, err := s.matrix(r.Context(), year, order)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, matrixResponse{
		Year:          year,
		Sort:          order,
		Months:        budget.MonthKeys(rows),
		Rows:          rows,
		MonthlyTotals: budget.MonthlyTotals(rows),
	})
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	year, err := PathYear(r)
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	report := export.YearReport{Year: year}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		report.Comparison, err = s.comparison(ctx, year)
		return err
	})
	g.Go(func() (err error) {
		report.Matrix, err = s.matrix(ctx, year, budget.DefaultMatrixSort())
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, report); err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="budget-%d.xlsx"`, year))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := cache.Load(s.views, cache.ViewKey(0, "totals"), func() (core.BudgetTotals, error) {
		return s.deps.Engine.Totals(r.Context())
	})
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
