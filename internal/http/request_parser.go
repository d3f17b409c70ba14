// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing row edits from HTMX forms and
// JSON bodies.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"quotesheet/internal/core"
)

// maxBodyBytes bounds a single edit request.
const maxBodyBytes = 16 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if p.err == nil && len(p.body) > maxBodyBytes {
			p.err = fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		}
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		dec := json.NewDecoder(strings.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("decode json body: %w", err)
			return p.err
		}
		if dec.More() {
			p.err = fmt.Errorf("decode json body: trailing data")
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Has reports whether key was sent at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Row builds an edit candidate for current. Fields absent from the request
// keep their current value; numeric fields that are present go through
// core.ParseAmount, so junk becomes NaN and is rejected by validation.
func (p *RequestBodyParser) Row(current core.Row) core.Row {
	candidate := current
	if p.Has("name") {
		candidate.Name = p.Get("name")
	}
	if p.Has("model") {
		candidate.Model = p.Get("model")
	}
	if p.Has("price") {
		candidate.Price = core.ParseAmount(p.Get("price"))
	}
	if p.Has("cost") {
		candidate.Cost = core.ParseAmount(p.Get("cost"))
	}
	return candidate
}

// stringValue converts a decoded JSON value to its text form. Values that
// are neither strings nor representable numbers become text no number
// parser accepts.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseRowID reads the {id} path segment.
func parseRowID(r *http.Request) (int, error) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid row id %q", raw)
	}
	return id, nil
}
