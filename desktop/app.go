package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/pkg/embedded"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// App struct holds the application state.
type App struct {
	ctx     context.Context
	cancel  context.CancelFunc
	editor  *embedded.App
	handler http.Handler
	docPath string
	mu      sync.RWMutex
}

// NewApp creates a new App application struct.
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// shutdown is called when the app is closing.
func (a *App) shutdown(ctx context.Context) {
	a.closeDocument()
}

// closeDocument flushes and closes the open document, if any.
func (a *App) closeDocument() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.editor.Close(ctx); err != nil {
		runtime.LogErrorf(a.ctx, "close document: %v", err)
	}
	a.cancel()
	a.editor, a.handler, a.cancel = nil, nil, nil
	a.docPath = ""
}

// OpenDocument shows a file dialog and edits the chosen snapshot file.
// A file that does not exist yet starts as the initial document.
func (a *App) OpenDocument() (string, error) {
	selection, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Open or Create Page",
		DefaultFilename: "pagebuilder.json",
		Filters: []runtime.FileFilter{
			{DisplayName: "Page snapshots (*.json)", Pattern: "*.json"},
		},
	})
	if err != nil {
		return "", err
	}
	if selection == "" {
		return "", nil
	}

	if err := a.loadDocument(selection); err != nil {
		return "", err
	}
	runtime.WindowReloadApp(a.ctx)
	return selection, nil
}

// loadDocument opens path with the file backend and swaps it in.
func (a *App) loadDocument(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	a.closeDocument()

	cfg := config.DefaultConfig()
	cfg.Title = filepath.Base(absPath)
	cfg.Storage = config.StorageConfig{Backend: config.BackendFile, Path: absPath}
	// The webview is the only client.
	cfg.Features.Sync = false

	ctx, cancel := context.WithCancel(context.Background())
	editor, err := embedded.New(ctx, embedded.Options{Config: cfg})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open %s: %w", absPath, err)
	}

	a.mu.Lock()
	a.editor = editor
	a.handler = editor.Handler(ctx)
	a.cancel = cancel
	a.docPath = absPath
	a.mu.Unlock()
	return nil
}

// GetDocumentPath returns the path of the open document.
func (a *App) GetDocumentPath() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.docPath
}

// GetHandler returns the HTTP handler.
// If a document is open, it serves the editor.
// Otherwise, it serves the welcome screen.
func (a *App) GetHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.RLock()
		h := a.handler
		a.mu.RUnlock()

		if h != nil {
			h.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(welcomeHTML))
	})
}

const welcomeHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8"/>
    <meta content="width=device-width, initial-scale=1.0" name="viewport"/>
    <title>Page Builder</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            background: #f5f6f8;
            color: #1f2933;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            padding: 2rem;
        }
        .container { text-align: center; max-width: 520px; }
        h1 { font-size: 2rem; margin-bottom: 1rem; }
        p { color: #52606d; line-height: 1.6; margin-bottom: 2rem; }
        button {
            padding: 0.75rem 1.5rem;
            font-size: 1rem;
            border: none;
            border-radius: 6px;
            background: #2563eb;
            color: #fff;
            cursor: pointer;
        }
        kbd { background: #e4e7eb; padding: 0.1rem 0.4rem; border-radius: 4px; }
    </style>
</head>
<body>
<div class="container">
    <h1>Page Builder</h1>
    <p>Lay out a page in rows and columns of markdown text and images.
       Open an existing page snapshot or pick a new file name to start.</p>
    <button onclick="window.go.main.App.OpenDocument()">Open page&hellip;</button>
    <p style="margin-top: 1.5rem; font-size: 0.9rem;"><kbd>Ctrl/Cmd + O</kbd></p>
</div>
</body>
</html>
`
