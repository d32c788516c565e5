// Package teachme holds the web assets of the teach.me study assistant.
package teachme

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the web interface. These templates
// are organized in a directory structure that separates layouts, pages, and partial views.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded JavaScript and CSS files served under /static.
//
//go:embed static/*
var StaticFS embed.FS
