package web

import (
	"embed"
	"io/fs"
)

// StaticFS embeds the dashboard page and its assets.
//
//go:embed static/*
var StaticFS embed.FS

// Static returns the assets rooted at static/, ready to serve at /.
func Static() (fs.FS, error) {
	return fs.Sub(StaticFS, "static")
}
