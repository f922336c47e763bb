package http

import (
	"net/http"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/store"
)

type holdingRoutes struct {
	path string
	kind core.HoldingKind
}

func holdingTable(kind core.HoldingKind) string {
	if kind == core.KindReserve {
		return store.TableReserves
	}
	return store.TableInvestments
}

type holdingRequest struct {
	Category     string      `json:"category"`
	Name         string      `json:"name"`
	CurrentValue core.Money  `json:"current_value"`
	TargetValue  *core.Money `json:"target_value,omitempty"`
}

type valueRequest struct {
	Value *core.Money `json:"value"`
}

func (s *Server) handleListHoldings(kind core.HoldingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.deps.Repos.Holdings.List(r.Context(), kind)
		if err != nil {
			s.fail(w, r, log.OpList, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleCreateHolding(kind core.HoldingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req holdingRequest
		if err := DecodeJSON(r, &req); err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		h, err := s.deps.Repos.Holdings.Create(r.Context(), core.Holding{
			Kind:         kind,
			Category:     sanitizeInput(req.Category),
			Name:         sanitizeInput(req.Name),
			CurrentValue: req.CurrentValue,
			TargetValue:  req.TargetValue,
		})
		if err != nil {
			s.fail(w, r, log.OpCreate, err)
			return
		}
		s.invalidate(holdingTable(kind), 0)
		writeJSON(w, http.StatusCreated, h)
	}
}

func (s *Server) handleDeleteHolding(kind core.HoldingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Repos.Holdings.Delete(r.Context(), kind, PathID(r)); err != nil {
			s.fail(w, r, log.OpDelete, err)
			return
		}
		s.invalidate(holdingTable(kind), 0)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleUpdateHoldingValue changes a value on behalf of the X-User-ID user
// and records the change in the holding's history.
func (s *Server) handleUpdateHoldingValue(kind core.HoldingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := ActingUser(r)
		if err != nil {
			s.fail(w, r, log.OpUpdate, err)
			return
		}
		var req valueRequest
		if err := DecodeJSON(r, &req); err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		if req.Value == nil {
			s.fail(w, r, log.OpUpdate, core.ErrMissingAmount)
			return
		}
		h, err := s.deps.Holdings.UpdateValue(r.Context(), kind, PathID(r), *req.Value, user)
		if err != nil {
			// The value may have been stored even when history was not.
			s.invalidate(holdingTable(kind), 0)
			s.fail(w, r, log.OpUpdate, err)
			return
		}
		s.invalidate(holdingTable(kind), 0)
		writeJSON(w, http.StatusOK, h)
	}
}

func (s *Server) handleHoldingHistory(kind core.HoldingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.deps.History.History(r.Context(), kind, PathID(r))
		if err != nil {
			s.fail(w, r, log.OpList, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
