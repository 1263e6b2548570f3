package core

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// initWatcher starts watching the shape source when enabled. Files on the
// local disk are watched with fsnotify, every other source is polled.
func (g *Engine) initWatcher() error {
	e := g.load()

	if !e.conf.WatchShape {
		return nil
	}

	if fp, ok := e.shapes.(*FileShapeProvider); ok && fp.onDisk() {
		return g.startFileWatcher(fp.Path())
	}

	ps := e.conf.ShapePollDuration

	switch {
	case ps < (1 * time.Second):
		return nil

	case ps < (5 * time.Second):
		ps = 10 * time.Second
	}

	go func() {
		g.startPoller(ps)
	}()
	return nil
}

// startPoller reloads the shape on every tick, Reload only swaps it in when
// its hash changed.
func (g *Engine) startPoller(ps time.Duration) {
	ticker := time.NewTicker(ps)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), ps)
		_, err := g.Reload(ctx)
		cancel()

		if err != nil {
			g.load().log.Warn("shape poll failed", zap.Error(err))
		}
	}
}

// startFileWatcher watches the directory of the shape file so that editors
// which replace the file on save are picked up too.
func (g *Engine) startFileWatcher(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close() //nolint:errcheck
		return err
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close() //nolint:errcheck
		return err
	}

	go func() {
		defer w.Close() //nolint:errcheck

		for {
			select {
			case <-g.done:
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}

				log := g.load().log
				log.Info("shape file changed", zap.String("file", ev.Name))

				if _, err := g.Reload(context.Background()); err != nil {
					log.Warn("shape reload failed, keeping the current shape", zap.Error(err))
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				g.load().log.Warn("shape watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
