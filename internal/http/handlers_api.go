package http

import (
	"errors"
	"math"
	"net/http"
	"sync/atomic"

	"quotesheet/internal/core"
	"quotesheet/internal/log"
	"quotesheet/internal/sheets"
)

type (
	sheetResponse struct {
		SheetID string       `json:"sheet_id"`
		Variant string       `json:"variant"`
		Columns core.Columns `json:"columns"`
		Rows    []core.Row   `json:"rows"`
		Totals  core.Totals  `json:"totals"`
	}

	rowResponse struct {
		Row    core.Row    `json:"row"`
		Totals core.Totals `json:"totals"`
	}

	errorResponse struct {
		Error  string        `json:"error"`
		Reason string        `json:"reason,omitempty"`
		Row    *candidateRow `json:"row,omitempty"`
	}

	// candidateRow echoes a rejected edit. Values that are not finite
	// numbers encode as null.
	candidateRow struct {
		ID    int      `json:"id"`
		Name  string   `json:"name"`
		Model string   `json:"model"`
		Price *float64 `json:"price"`
		Cost  *float64 `json:"cost"`
	}
)

func echoCandidate(r core.Row) *candidateRow {
	finite := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return &candidateRow{
		ID:    r.ID,
		Name:  r.Name,
		Model: r.Model,
		Price: finite(r.Price),
		Cost:  finite(r.Cost),
	}
}

// apiSheet returns the caller's sheet, starting a session when the request
// carries none.
func (s *Server) apiSheet(w http.ResponseWriter, r *http.Request) (*sheets.Sheet, bool) {
	if sheet, ok := s.currentSheet(r); ok {
		return sheet, true
	}
	sheet, err := s.newSession(w, r)
	if err != nil {
		log.LogError(r.Context(), "Failed to start session", err, log.OpSeed, nil)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "session unavailable"})
		return nil, false
	}
	return sheet, true
}

func (s *Server) handleAPISheet(w http.ResponseWriter, r *http.Request) {
	sheet, ok := s.apiSheet(w, r)
	if !ok {
		return
	}
	view, err := sheet.View(r.Context())
	if err != nil {
		log.LogError(r.Context(), "Failed to read sheet", err, log.OpView, log.NewFields().WithSheet(sheet.ID(), 0))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "read failed"})
		return
	}
	writeJSON(w, http.StatusOK, sheetResponse{
		SheetID: sheet.ID(),
		Variant: s.registry.Variant().Name,
		Columns: sheet.Columns(),
		Rows:    view.Rows,
		Totals:  view.Totals,
	})
}

func (s *Server) handleAPIAppendRow(w http.ResponseWriter, r *http.Request) {
	sheet, ok := s.apiSheet(w, r)
	if !ok {
		return
	}
	row, err := sheet.AppendDefault(r.Context())
	if err != nil {
		if errors.Is(err, sheets.ErrClosed) {
			writeJSON(w, http.StatusGone, errorResponse{Error: "session expired"})
			return
		}
		log.LogError(r.Context(), "Failed to append row", err, log.OpAppend, log.NewFields().WithSheet(sheet.ID(), 0))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "append failed"})
		return
	}
	atomic.AddInt64(&s.stats.appends, 1)

	view, err := sheet.View(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "read failed"})
		return
	}
	writeJSON(w, http.StatusCreated, rowResponse{Row: row, Totals: view.Totals})
}

// handleAPIEditRow accepts the same fields as the form, as JSON or
// form-encoded. Rejected values answer 422 with the alert text.
func (s *Server) handleAPIEditRow(w http.ResponseWriter, r *http.Request) {
	sheet, ok := s.apiSheet(w, r)
	if !ok {
		return
	}
	id, err := parseRowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Reason: err.Error()})
		return
	}

	row, err := s.applyEdit(r.Context(), sheet, id, p)
	switch {
	case err == nil:
	case core.IsValidationError(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  core.InvalidInputMessage,
			Reason: err.Error(),
			Row:    echoCandidate(row),
		})
		return
	case errors.Is(err, core.ErrRowNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: core.ErrRowNotFound.Error()})
		return
	case errors.Is(err, sheets.ErrClosed):
		writeJSON(w, http.StatusGone, errorResponse{Error: "session expired"})
		return
	default:
		log.LogError(r.Context(), "Failed to apply edit", err, log.OpEdit, log.NewFields().WithSheet(sheet.ID(), 0))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "edit failed"})
		return
	}

	view, err := sheet.View(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "read failed"})
		return
	}
	writeJSON(w, http.StatusOK, rowResponse{Row: row, Totals: view.Totals})
}
