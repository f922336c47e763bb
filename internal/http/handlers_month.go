package http

import (
	"fmt"
	"net/http"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/store"
)

// monthResponse is the monthly detail page: the prepared month, its summary
// and its variable expenses.
type monthResponse struct {
	core.MonthSnapshot
	Summary          core.MonthSummary      `json:"summary"`
	VariableExpenses []core.VariableExpense `json:"variable_expenses"`
}

type creditCardRequest struct {
	Amount core.Money `json:"amount"`
}

type statusRequest struct {
	Completed *bool `json:"completed"`
}

type variableExpenseRequest struct {
	CategoryID  string     `json:"category_id"`
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Date        core.Date  `json:"date"`
}

func (v variableExpenseRequest) toVariableExpense(id string) core.VariableExpense {
	return core.VariableExpense{
		ID:          id,
		CategoryID:  sanitizeInput(v.CategoryID),
		Description: sanitizeInput(v.Description),
		Amount:      v.Amount,
		Date:        v.Date,
	}
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := PathYearMonth(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	snap, err := s.deps.Months.PrepareMonth(r.Context(), year, month)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	summary, variable, err := s.deps.Engine.MonthDetail(r.Context(), snap)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{
		MonthSnapshot:    snap,
		Summary:          summary,
		VariableExpenses: variable,
	})
}

func (s *Server) handleSetMonthIncome(w http.ResponseWriter, r *http.Request) {
	year, month, err := PathYearMonth(r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	var req core.Incomes
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	income, err := s.deps.Repos.MonthlyIncome.Set(r.Context(), year, month, req)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, income)
}

func (s *Server) handleResetMonthIncome(w http.ResponseWriter, r *http.Request) {
	year, month, err := PathYearMonth(r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	income, err := s.deps.Months.ResetIncomeToDefault(r.Context(), year, month)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, income)
}

func (s *Server) handleSetCreditCard(w http.ResponseWriter, r *http.Request) {
	year, month, err := PathYearMonth(r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	var req creditCardRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	card, err := s.deps.Repos.CreditCards.Set(r.Context(), year, month, req.Amount)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Completed == nil {
		BadRequestError("missing completed").Write(w)
		return
	}
	status, err := s.deps.Repos.Statuses.SetCompleted(r.Context(), PathID(r), *req.Completed)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.invalidate(store.TableFixedExpenseStatus, status.Year)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListVariableExpenses(w http.ResponseWriter, r *http.Request) {
	year, month, err := PathYearMonth(r)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	list, err := s.deps.Repos.VariableExpenses.ListMonth(r.Context(), year, month)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateVariableExpense(w http.ResponseWriter, r *http.Request) {
	year, month, err := PathYearMonth(r)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	var req variableExpenseRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Date.IsZero() {
		s.fail(w, r, log.OpCreate, core.ErrMissingDate)
		return
	}
	if req.Date.Year() != year || int(req.Date.Month()) != month {
		s.fail(w, r, log.OpCreate, fmt.Errorf("%w: date %s is outside %s", core.ErrInvalidMonth, req.Date, core.MonthKey(year, month)))
		return
	}
	exp, err := s.deps.Repos.VariableExpenses.Create(r.Context(), req.toVariableExpense(""))
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.invalidate(store.TableVariableExpenses, exp.Year)
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleUpdateVariableExpense(w http.ResponseWriter, r *http.Request) {
	var req variableExpenseRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id := PathID(r)
	before, err := s.deps.Repos.VariableExpenses.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	exp, err := s.deps.Repos.VariableExpenses.Update(r.Context(), req.toVariableExpense(id))
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.invalidate(store.TableVariableExpenses, before.Year)
	if exp.Year != before.Year {
		s.invalidate(store.TableVariableExpenses, exp.Year)
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleDeleteVariableExpense(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	exp, err := s.deps.Repos.VariableExpenses.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	if err := s.deps.Repos.VariableExpenses.Delete(r.Context(), id); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	s.invalidate(store.TableVariableExpenses, exp.Year)
	w.WriteHeader(http.StatusNoContent)
}
