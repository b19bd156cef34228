package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"goaltrack/internal/database"
)

// RunDaemon keeps the remote backup current until ctx is cancelled. It polls
// the remote on the configured interval, picks up commits made to the store
// by other goaltrack processes, and optionally serves Prometheus metrics.
func (a *App) RunDaemon(ctx context.Context) error {
	var ln net.Listener
	if addr := a.cfg.Daemon.MetricsAddr; addr != "" {
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening for metrics on %s: %w", addr, err)
		}
	}
	return a.runDaemon(ctx, ln)
}

func (a *App) runDaemon(ctx context.Context, metricsLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.pollLoop(gctx)
		return nil
	})

	if a.store.Path() != ":memory:" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating store watcher: %w", err)
		}
		dir := filepath.Dir(a.store.Path())
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		g.Go(func() error {
			defer w.Close()
			return a.watchStore(gctx, w)
		})
	}

	if metricsLn != nil {
		srv := &http.Server{
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          zap.NewStdLog(a.zl),
		}
		a.logger.Info("serving metrics", "addr", metricsLn.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.logger.Info("daemon started", "poll_interval", a.cfg.Sync.PollInterval.Duration.String())
	err := g.Wait()
	a.logger.Info("daemon stopped")
	return err
}

func (a *App) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, a.controller.State().String())
	})
	return mux
}

func (a *App) pollLoop(ctx context.Context) {
	interval := a.cfg.Sync.PollInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.controller.Tick(ctx)
		}
	}
}

// watchStore marks the controller dirty whenever another connection commits
// to the database. Events caused by this process's own writes leave
// data_version unchanged and are ignored.
func (a *App) watchStore(ctx context.Context, w *fsnotify.Watcher) error {
	last, err := a.store.DataVersion(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), database.DatabaseFileName) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			v, err := a.store.DataVersion(ctx)
			if err != nil {
				a.logger.Warn("reading data version failed", "error", err)
				continue
			}
			if v != last {
				last = v
				a.logger.Debug("store changed by another process")
				a.controller.MarkDirty()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("store watcher error", "error", err)
		}
	}
}
