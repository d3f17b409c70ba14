// Package web holds the editor's page templates and browser assets.
package web

import "embed"

// TemplatesFS holds the page and the "sheet" partial.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the notification script.
//
//go:embed static/*
var StaticFS embed.FS
