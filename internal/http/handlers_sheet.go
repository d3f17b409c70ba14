package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"quotesheet/internal/core"
	"quotesheet/internal/log"
	"quotesheet/internal/session"
	"quotesheet/internal/sheets"
)

// sheetPage is the data the index page and the sheet partial render.
type sheetPage struct {
	SheetID  string
	Title    string
	Subtitle string
	Currency string
	Columns  core.Columns
	Rows     []core.Row
	Totals   core.Totals
}

func (s *Server) page(sheet *sheets.Sheet, view core.View) sheetPage {
	v := s.registry.Variant()
	return sheetPage{
		SheetID:  sheet.ID(),
		Title:    v.Title,
		Subtitle: v.Subtitle,
		Currency: v.Currency,
		Columns:  sheet.Columns(),
		Rows:     view.Rows,
		Totals:   view.Totals,
	}
}

// handleIndex starts a fresh session and renders the full page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sheet, err := s.newSession(w, r)
	if err != nil {
		log.LogError(ctx, "Failed to start session", err, log.OpSeed, nil)
		InternalServerError("无法创建表格").Write(w)
		return
	}

	view, err := sheet.View(ctx)
	if err != nil {
		log.LogError(ctx, "Failed to read sheet", err, log.OpView, log.NewFields().WithSheet(sheet.ID(), 0))
		InternalServerError("无法读取表格").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", s.page(sheet, view)); err != nil {
		s.logger.ErrorContext(ctx, "Index template execution failed",
			log.FieldError, err,
			log.FieldTemplate, "index.html")
		InternalServerError("页面渲染失败").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(buf.Bytes()).Write(w)
}

// handleSheet renders the sheet partial for the current session.
func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	sheet, ok := s.currentSheet(r)
	if !ok {
		SessionGone().Write(w)
		return
	}
	body, _, err := s.renderSheet(r.Context(), sheet)
	if err != nil {
		InternalServerError("页面渲染失败").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

// handleAppendRow adds a default row and returns the refreshed partial.
func (s *Server) handleAppendRow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sheet, ok := s.currentSheet(r)
	if !ok {
		SessionGone().Write(w)
		return
	}

	if _, err := sheet.AppendDefault(ctx); err != nil {
		if errors.Is(err, sheets.ErrClosed) {
			SessionGone().Write(w)
			return
		}
		log.LogError(ctx, "Failed to append row", err, log.OpAppend, log.NewFields().WithSheet(sheet.ID(), 0))
		InternalServerError("添加商品失败").Write(w)
		return
	}
	atomic.AddInt64(&s.stats.appends, 1)

	body, view, err := s.renderSheet(ctx, sheet)
	if err != nil {
		InternalServerError("页面渲染失败").Write(w)
		return
	}
	NewHTMXResponse().
		TriggerSheetChanged(view.Totals).
		BodyHTML(body).
		Write(w)
}

// handleEditRow applies one row edit from the inline form. A rejected edit
// answers 200 with the unchanged sheet and a blocking alert, so htmx still
// swaps the inputs back to their stored values.
func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sheet, ok := s.currentSheet(r)
	if !ok {
		SessionGone().Write(w)
		return
	}

	id, err := parseRowID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("请求格式无效").Write(w)
		return
	}

	_, err = s.applyEdit(ctx, sheet, id, p)
	switch {
	case err == nil:
	case core.IsValidationError(err):
		body, _, rerr := s.renderSheet(ctx, sheet)
		if rerr != nil {
			InternalServerError("页面渲染失败").Write(w)
			return
		}
		NewHTMXResponse().
			TriggerInvalidInput().
			BodyHTML(body).
			Write(w)
		return
	case errors.Is(err, core.ErrRowNotFound):
		NotFoundError("商品不存在").Write(w)
		return
	case errors.Is(err, sheets.ErrClosed):
		SessionGone().Write(w)
		return
	default:
		log.LogError(ctx, "Failed to apply edit", err, log.OpEdit, log.NewFields().WithSheet(sheet.ID(), 0))
		InternalServerError("保存失败").Write(w)
		return
	}

	body, view, err := s.renderSheet(ctx, sheet)
	if err != nil {
		InternalServerError("页面渲染失败").Write(w)
		return
	}
	NewHTMXResponse().
		TriggerSheetChanged(view.Totals).
		BodyHTML(body).
		Write(w)
}

// applyEdit builds the candidate for row id from p and hands it to the sheet.
// Fields p does not carry keep the row's stored values. The returned row is
// the candidate when the edit was rejected.
func (s *Server) applyEdit(ctx context.Context, sheet *sheets.Sheet, id int, p *RequestBodyParser) (core.Row, error) {
	row, err := sheet.ApplyEditFunc(ctx, id, p.Row)
	if err != nil {
		if core.IsValidationError(err) {
			atomic.AddInt64(&s.stats.editsRejected, 1)
		}
		return row, err
	}
	atomic.AddInt64(&s.stats.editsAccepted, 1)
	return row, nil
}

// renderSheet executes the sheet partial against the current rows.
func (s *Server) renderSheet(ctx context.Context, sheet *sheets.Sheet) ([]byte, core.View, error) {
	view, err := sheet.View(ctx)
	if err != nil {
		log.LogError(ctx, "Failed to read sheet", err, log.OpView, log.NewFields().WithSheet(sheet.ID(), 0))
		return nil, core.View{}, err
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "sheet", s.page(sheet, view)); err != nil {
		s.logger.ErrorContext(ctx, "Sheet template execution failed",
			log.FieldError, err,
			log.FieldTemplate, "sheet",
			log.FieldSheetID, sheet.ID())
		return nil, core.View{}, err
	}
	return buf.Bytes(), view, nil
}

// currentSheet resolves the session cookie to its live sheet.
func (s *Server) currentSheet(r *http.Request) (*sheets.Sheet, bool) {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil, false
	}
	return s.registry.Get(c.Value)
}

// newSession creates a sheet and points the browser at it.
func (s *Server) newSession(w http.ResponseWriter, r *http.Request) (*sheets.Sheet, error) {
	sheet, err := s.registry.Create(r.Context())
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&s.stats.sessions, 1)
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sheet.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return sheet, nil
}
