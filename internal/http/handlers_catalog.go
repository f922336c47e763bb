package http

import (
	"net/http"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/store"
)

type categoryRequest struct {
	Name string `json:"name"`
}

type fixedExpenseRequest struct {
	CategoryID      string     `json:"category_id"`
	Description     string     `json:"description"`
	EstimatedAmount core.Money `json:"estimated_amount"`
	Owner           core.Owner `json:"owner"`
	StatusRequired  bool       `json:"status_required"`
}

func (f fixedExpenseRequest) toFixedExpense(id string) core.FixedExpense {
	return core.FixedExpense{
		ID:              id,
		CategoryID:      sanitizeInput(f.CategoryID),
		Description:     sanitizeInput(f.Description),
		EstimatedAmount: f.EstimatedAmount,
		Owner:           f.Owner,
		StatusRequired:  f.StatusRequired,
	}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Repos.Categories.List(r.Context())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	cat, err := s.deps.Repos.Categories.Create(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.invalidate(store.TableCategories, 0)
	writeJSON(w, http.StatusCreated, cat)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	cat, err := s.deps.Repos.Categories.Rename(r.Context(), PathID(r), sanitizeInput(req.Name))
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.invalidate(store.TableCategories, 0)
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Repos.Categories.Delete(r.Context(), PathID(r)); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	s.invalidate(store.TableCategories, 0)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFixedExpenses(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Repos.FixedExpenses.List(r.Context())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateFixedExpense(w http.ResponseWriter, r *http.Request) {
	var req fixedExpenseRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	fe, err := s.deps.Repos.FixedExpenses.Create(r.Context(), req.toFixedExpense(""))
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.invalidate(store.TableFixedExpenses, 0)
	writeJSON(w, http.StatusCreated, fe)
}

func (s *Server) handleUpdateFixedExpense(w http.ResponseWriter, r *http.Request) {
	var req fixedExpenseRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	fe, err := s.deps.Repos.FixedExpenses.Update(r.Context(), req.toFixedExpense(PathID(r)))
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.invalidate(store.TableFixedExpenses, 0)
	writeJSON(w, http.StatusOK, fe)
}

func (s *Server) handleDeleteFixedExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Repos.FixedExpenses.Delete(r.Context(), PathID(r)); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	s.invalidate(store.TableFixedExpenses, 0)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDefaultIncome(w http.ResponseWriter, r *http.Request) {
	income, err := s.deps.Repos.DefaultIncome.Get(r.Context())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, income)
}

func (s *Server) handleSetDefaultIncome(w http.ResponseWriter, r *http.Request) {
	var req core.Incomes
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	income, err := s.deps.Repos.DefaultIncome.Set(r.Context(), req)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, income)
}
