package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/livetemplate/pagebuilder"
	"github.com/livetemplate/pagebuilder/internal/assets"
	"github.com/livetemplate/pagebuilder/internal/cache"
	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/internal/persist"
	"github.com/livetemplate/pagebuilder/internal/security"
	"go.uber.org/zap"
)

// Server serves one editor to any number of browser tabs.
type Server struct {
	config    *config.Config
	editor    *pagebuilder.Editor
	router    *pagebuilder.MessageRouter
	store     persist.Store
	saver     *persist.Saver
	fragments *cache.MemoryCache
	logger    *zap.Logger

	// actionMu serializes gestures and restores so observers see
	// snapshots in the order they were made.
	actionMu sync.Mutex

	connections map[*client]struct{}
	connMu      sync.RWMutex
	watcher     *Watcher
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	editorOpts []pagebuilder.Option
	saverOpts  []persist.SaverOption
}

// WithEditorOptions passes extra options to the editor, e.g. a fixed id
// generator in tests.
func WithEditorOptions(opts ...pagebuilder.Option) Option {
	return func(o *serverOptions) {
		o.editorOpts = append(o.editorOpts, opts...)
	}
}

// WithSaverOptions passes options to the background saver.
func WithSaverOptions(opts ...persist.SaverOption) Option {
	return func(o *serverOptions) {
		o.saverOpts = append(o.saverOpts, opts...)
	}
}

// New creates a server that persists to store. The editor starts on the
// initial document; call LoadSnapshot to pick up a stored one.
func New(cfg *config.Config, store persist.Store, logger *zap.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	policy := security.ImagePolicy{
		AllowPrivateHosts: cfg.Editor.AllowPrivateImages,
		AllowDataURLs:     cfg.Editor.DataImagesAllowed(),
	}
	fragments := cache.NewMemoryCache(cfg.Editor.RenderCache.GetMaxEntries())
	renderer := pagebuilder.NewRenderer(
		pagebuilder.WithFragmentCache(cache.NewFragments(fragments, cfg.Editor.RenderCache.GetTTL())),
		pagebuilder.WithImagePolicy(policy.Validate),
	)

	editorOpts := append([]pagebuilder.Option{
		pagebuilder.WithColumnTarget(pagebuilder.ColumnTarget(cfg.Editor.AddColumnTarget)),
	}, o.editorOpts...)
	editor := pagebuilder.New(editorOpts...)

	s := &Server{
		config:      cfg,
		editor:      editor,
		router:      pagebuilder.NewMessageRouter(editor, renderer),
		store:       store,
		saver:       persist.NewSaver(store, logger.Named("saver"), o.saverOpts...),
		fragments:   fragments,
		logger:      logger,
		connections: make(map[*client]struct{}),
	}
	editor.OnChange(s.persist)
	return s
}

// Editor returns the editor the server drives.
func (s *Server) Editor() *pagebuilder.Editor {
	return s.editor
}

// persist hands every new snapshot to the saver.
func (s *Server) persist(state pagebuilder.State) {
	data, err := pagebuilder.MarshalState(state)
	if err != nil {
		s.logger.Error("encode snapshot", zap.Error(err))
		return
	}
	s.saver.Submit(data)
}

// LoadSnapshot restores the stored snapshot. A store with nothing in it
// leaves the initial document in place. A corrupt snapshot resets the editor
// to the initial document and is reported as a warning, not an error.
func (s *Server) LoadSnapshot(ctx context.Context) error {
	data, err := s.store.Load(ctx)
	if errors.Is(err, persist.ErrNoSnapshot) {
		s.logger.Info("no stored snapshot, starting from the initial document",
			zap.String("backend", s.store.Name()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	if err := s.editor.Restore(data); err != nil {
		s.rejected(ctx, data, "stored snapshot unusable, started from the initial document", err)
		return nil
	}
	s.saver.MarkSaved(data)
	s.logger.Info("snapshot restored", zap.String("backend", s.store.Name()))
	return nil
}

// corruptKeeper is implemented by stores that can keep a rejected snapshot
// next to the live one.
type corruptKeeper interface {
	SetAside(ctx context.Context, data []byte) (string, error)
}

// rejected records a snapshot the editor refused before the saver replaces
// it with the initial document. The size and digest are always logged so the
// blob can be matched against backups; file stores also keep a copy.
func (s *Server) rejected(ctx context.Context, data []byte, msg string, cause error) {
	sum := sha256.Sum256(data)
	fields := []zap.Field{
		zap.String("backend", s.store.Name()),
		zap.Int("bytes", len(data)),
		zap.String("sha256", hex.EncodeToString(sum[:])),
		zap.Error(cause),
	}
	if keeper, ok := s.store.(corruptKeeper); ok {
		path, err := keeper.SetAside(ctx, data)
		if err != nil {
			s.logger.Error("keep rejected snapshot", zap.Error(err))
		} else {
			fields = append(fields, zap.String("kept_at", path))
		}
	}
	s.logger.Warn(msg, fields...)
}

// Handler returns the server wrapped in the configured middleware chain.
func (s *Server) Handler(ctx context.Context) http.Handler {
	var h http.Handler = s
	api := s.config.API
	if api.IsAuthEnabled() {
		h = s.requireAuth(h, AuthMiddleware(api.Auth))
	}
	if api != nil {
		limit, _ := RateLimitMiddleware(ctx, api.GetRateLimitRPS(), api.GetRateLimitBurst(), api.GetMaxTrackedIPs(), s.logger.Named("ratelimit"))
		h = limit(h)
	}
	h = CORSMiddleware(api.GetCORSOrigins(), s.authHeader())(h)
	h = SecurityHeadersMiddleware()(h)
	return WithCompression(h)
}

// requireAuth applies auth to everything except the health check and the
// static assets.
func (s *Server) requireAuth(next http.Handler, auth func(http.Handler) http.Handler) http.Handler {
	protected := auth(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/assets/") {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func (s *Server) authHeader() string {
	if s.config.API == nil {
		return ""
	}
	return s.config.API.Auth.GetHeaderName()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/ws":
		NewWebSocketHandler(s).ServeHTTP(w, r)
	case r.URL.Path == "/healthz":
		s.serveHealth(w, r)
	case strings.HasPrefix(r.URL.Path, "/assets/"):
		s.serveAsset(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/"):
		NewAPIHandler(s).ServeHTTP(w, r)
	case r.URL.Path == "/":
		s.serveIndex(w, r)
	default:
		http.NotFound(w, r)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="/assets/editor.css">
</head>
<body>
<div id="app">{{.Body}}</div>
<script type="application/json" id="initial-state">{{.State}}</script>
<script src="/assets/editor.js"></script>
</body>
</html>
`))

type indexData struct {
	Title string
	Body  template.HTML
	State json.RawMessage
}

// serveIndex renders the editor page with the current view inlined.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp, err := s.router.View("", pagebuilder.FocusNone)
	if err != nil {
		s.logger.Error("render index", zap.Error(err))
		http.Error(w, "failed to render editor", http.StatusInternalServerError)
		return
	}

	data := indexData{
		Title: s.config.Title,
		Body:  template.HTML(resp.HTML),
		State: resp.State,
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		s.logger.Error("execute index template", zap.Error(err))
		http.Error(w, "failed to render editor", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// serveAsset serves the embedded client script and stylesheet.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	var (
		body        []byte
		err         error
		contentType string
	)
	switch strings.TrimPrefix(r.URL.Path, "/assets/") {
	case "editor.js":
		body, err = assets.GetEditorJS()
		contentType = "application/javascript"
	case "editor.css":
		body, err = assets.GetEditorCSS()
		contentType = "text/css"
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"backend":     s.store.Name(),
		"savePending": s.saver.Pending(),
		"connections": s.ConnectionCount(),
	})
}

// apply routes a gesture and shares the result with every other tab when
// sync is on. from is the sender's connection, or nil for HTTP callers.
func (s *Server) apply(env *pagebuilder.MessageEnvelope, from *client) (*pagebuilder.ResponseEnvelope, error) {
	s.actionMu.Lock()
	resp, err := s.router.Route(env)
	s.actionMu.Unlock()

	if err != nil {
		s.logActionError(env.Action, err)
		return resp, err
	}
	if s.config.Features.Sync {
		shared := *resp
		shared.Panel.Focus = pagebuilder.FocusNone
		s.broadcast(&shared, from)
	}
	return resp, nil
}

func (s *Server) logActionError(action string, err error) {
	fields := []zap.Field{zap.String("action", action), zap.Error(err)}
	switch {
	case errors.Is(err, pagebuilder.ErrInvalidSelection):
		s.logger.Error("action needs a selection", fields...)
	case errors.Is(err, pagebuilder.ErrNotFound),
		errors.Is(err, pagebuilder.ErrMalformedAction),
		errors.Is(err, pagebuilder.ErrInvalidAlignment):
		s.logger.Warn("action rejected", fields...)
	default:
		s.logger.Error("action failed", fields...)
	}
}

// registerConnection adds a WebSocket connection to the tracked connections.
func (s *Server) registerConnection(c *client) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[c] = struct{}{}
	s.logger.Debug("websocket connection registered", zap.Int("active", len(s.connections)))
}

// unregisterConnection removes a WebSocket connection from tracked connections.
func (s *Server) unregisterConnection(c *client) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.connections, c)
	s.logger.Debug("websocket connection unregistered", zap.Int("active", len(s.connections)))
}

// ConnectionCount reports the number of open sockets.
func (s *Server) ConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections)
}

// broadcast sends resp to every connection except skip.
func (s *Server) broadcast(resp *pagebuilder.ResponseEnvelope, skip *client) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode broadcast", zap.Error(err))
		return
	}

	s.connMu.RLock()
	targets := make([]*client, 0, len(s.connections))
	for c := range s.connections {
		if c != skip {
			targets = append(targets, c)
		}
	}
	s.connMu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			s.logger.Debug("broadcast write failed", zap.Error(err))
		}
	}
}

// BroadcastReload pushes the current view to every tab.
func (s *Server) BroadcastReload() {
	resp, err := s.router.View("reload", pagebuilder.FocusNone)
	if err != nil {
		s.logger.Error("render reload", zap.Error(err))
		return
	}
	s.broadcast(resp, nil)
}

// EnableWatch reloads the editor when the snapshot file is changed by
// something other than this server. Only the file backend can be watched.
func (s *Server) EnableWatch() error {
	fileStore, ok := s.store.(*persist.FileStore)
	if !ok {
		return fmt.Errorf("watch requires the %s backend, have %s", config.BackendFile, s.store.Name())
	}

	watcher, err := NewWatcher(fileStore.Path(), s.reloadFromDisk, s.logger.Named("watch"))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = watcher
	s.watcher.Start()

	s.logger.Info("watching snapshot file", zap.String("path", fileStore.Path()))
	return nil
}

// reloadFromDisk restores the file contents unless they are our own write.
func (s *Server) reloadFromDisk() error {
	data, err := s.store.Load(context.Background())
	if errors.Is(err, persist.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.saver.IsLastSaved(data) {
		return nil
	}

	s.actionMu.Lock()
	restoreErr := s.editor.Restore(data)
	s.actionMu.Unlock()

	if restoreErr != nil {
		s.rejected(context.Background(), data, "changed snapshot unusable, reset to the initial document", restoreErr)
	} else {
		s.saver.MarkSaved(data)
		s.logger.Info("snapshot reloaded from disk")
	}
	s.BroadcastReload()
	return nil
}

// StopWatch stops the file watcher if it's running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

// Close stops watching, writes any pending snapshot and closes the store.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if err := s.StopWatch(); err != nil {
		errs = append(errs, err)
	}

	s.connMu.Lock()
	for c := range s.connections {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline(ctx))
		_ = c.conn.Close()
	}
	s.connections = make(map[*client]struct{})
	s.connMu.Unlock()

	if err := s.saver.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush snapshot: %w", err))
	}
	s.fragments.Stop()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
