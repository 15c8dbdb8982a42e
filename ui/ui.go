// Package ui embeds the browser front-end served by the panel.
package ui

import "embed"

//go:generate go run concat.go

// Content holds templates/index.html and static/...; paths are kept
// relative to this directory so the server can mount them as is.
//
//go:embed templates static
var Content embed.FS
