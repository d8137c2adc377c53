// Package assets embeds the editor's client JavaScript and CSS.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetEditorJS returns the browser JavaScript for the editor
func GetEditorJS() ([]byte, error) {
	return clientFS.ReadFile("client/editor.js")
}

// GetEditorCSS returns the editor stylesheet
func GetEditorCSS() ([]byte, error) {
	return clientFS.ReadFile("client/editor.css")
}
