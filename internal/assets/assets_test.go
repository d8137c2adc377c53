package assets

import (
	"io/fs"
	"strings"
	"testing"
)

func TestGetEditorJS(t *testing.T) {
	data, err := GetEditorJS()
	if err != nil {
		t.Fatalf("GetEditorJS failed: %v", err)
	}
	if !strings.Contains(string(data), "/api/actions") {
		t.Error("GetEditorJS should post to the actions endpoint")
	}
}

func TestGetEditorCSS(t *testing.T) {
	data, err := GetEditorCSS()
	if err != nil {
		t.Fatalf("GetEditorCSS failed: %v", err)
	}
	for _, class := range []string{".text-align-left", ".text-align-center", ".text-align-right"} {
		if !strings.Contains(string(data), class) {
			t.Errorf("GetEditorCSS missing %s", class)
		}
	}
}

func TestClientFS(t *testing.T) {
	for _, name := range []string{"editor.js", "editor.css"} {
		if _, err := fs.Stat(ClientFS(), name); err != nil {
			t.Errorf("ClientFS missing %s: %v", name, err)
		}
	}
}
