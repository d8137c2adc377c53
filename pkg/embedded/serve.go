// Package embedded runs a page builder server from inside another Go program.
// It is what the pagebuilder CLI and the desktop shell use, and it can be used
// directly to ship a binary with a starting document baked in.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/livetemplate/pagebuilder"
	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/internal/logging"
	"github.com/livetemplate/pagebuilder/internal/persist"
	"github.com/livetemplate/pagebuilder/internal/server"
	"go.uber.org/zap"
)

// DefaultSeedPath is the seed file looked up in Options.SeedFS.
const DefaultSeedPath = "pagebuilder.json"

// shutdownTimeout bounds the HTTP drain and the final snapshot flush.
const shutdownTimeout = 10 * time.Second

// Serve starts a server on addr that starts from the snapshot at seedPath in
// seedFS when its store is empty.
//
// Example usage:
//
//	//go:embed seed/pagebuilder.json
//	var seedFS embed.FS
//
//	func main() {
//	    embedded.Serve(seedFS, "seed/pagebuilder.json", "localhost:8080")
//	}
func Serve(seedFS fs.FS, seedPath string, addr string) error {
	return ServeWithOptions(context.Background(), Options{
		SeedFS:   seedFS,
		SeedPath: seedPath,
		Addr:     addr,
	})
}

// Options provides configuration for the embedded server.
type Options struct {
	// Config is the server configuration (optional, defaults to config.DefaultConfig)
	Config *config.Config

	// Addr is the address to listen on. Defaults to the configured host and port.
	Addr string

	// SeedFS holds a snapshot used when the store has none (optional)
	SeedFS fs.FS

	// SeedPath is the snapshot file inside SeedFS (default: pagebuilder.json)
	SeedPath string

	// Store replaces the store built from Config.Storage (optional)
	Store persist.Store

	// Logger replaces the logger built from Config.Log (optional)
	Logger *zap.Logger

	// ServerOptions are passed through to the server (optional)
	ServerOptions []server.Option

	// OnReady is called with the listening address once connections are accepted (optional)
	OnReady func(addr string)
}

// App is a configured server that has loaded its snapshot.
type App struct {
	cfg     *config.Config
	srv     *server.Server
	logger  *zap.Logger
	addr    string
	onReady func(string)
}

// New opens the store, seeds it if needed and restores the snapshot.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = persist.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
		}
	}

	if opts.SeedFS != nil {
		seedPath := opts.SeedPath
		if seedPath == "" {
			seedPath = DefaultSeedPath
		}
		if err := Seed(ctx, store, opts.SeedFS, seedPath); err != nil {
			store.Close()
			return nil, err
		}
	}

	srv := server.New(cfg, store, logger, opts.ServerOptions...)
	if err := srv.LoadSnapshot(ctx); err != nil {
		_ = srv.Close(ctx)
		return nil, err
	}

	if cfg.Features.Watch && store.Name() == config.BackendFile {
		if err := srv.EnableWatch(); err != nil {
			logger.Warn("snapshot watching disabled", zap.Error(err))
		}
	}

	addr := opts.Addr
	if addr == "" {
		addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}

	return &App{cfg: cfg, srv: srv, logger: logger, addr: addr, onReady: opts.OnReady}, nil
}

// Editor returns the editor the app serves.
func (a *App) Editor() *pagebuilder.Editor {
	return a.srv.Editor()
}

// Handler returns the HTTP handler with the configured middleware chain.
// ctx bounds background middleware goroutines.
func (a *App) Handler(ctx context.Context) http.Handler {
	return a.srv.Handler(ctx)
}

// Close flushes the pending snapshot and releases the store.
func (a *App) Close(ctx context.Context) error {
	err := a.srv.Close(ctx)
	_ = a.logger.Sync()
	return err
}

// Run serves until ctx is cancelled or the process receives SIGINT/SIGTERM,
// then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", a.addr, err)
	}

	httpServer := &http.Server{
		Handler:           a.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()

	a.logger.Info("page builder ready",
		zap.String("addr", "http://"+ln.Addr().String()),
		zap.String("backend", a.cfg.Storage.Backend))
	if a.onReady != nil {
		a.onReady(ln.Addr().String())
	}

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		a.logger.Error("close failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// ServeWithOptions builds an App and runs it.
func ServeWithOptions(ctx context.Context, opts Options) error {
	app, err := New(ctx, opts)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// Seed stores the snapshot at path in seedFS when store has none. A seed that
// is not a valid snapshot is an error; nothing is written in that case.
func Seed(ctx context.Context, store persist.Store, seedFS fs.FS, path string) error {
	_, err := store.Load(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persist.ErrNoSnapshot) {
		return fmt.Errorf("failed to check store before seeding: %w", err)
	}

	data, err := fs.ReadFile(seedFS, path)
	if err != nil {
		return fmt.Errorf("failed to read seed %q: %w", path, err)
	}
	state, err := pagebuilder.UnmarshalState(data)
	if err != nil {
		return fmt.Errorf("seed %q: %w", path, err)
	}
	if err := pagebuilder.Validate(state); err != nil {
		return fmt.Errorf("seed %q: %w", path, err)
	}

	if err := store.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to store seed: %w", err)
	}
	return nil
}
