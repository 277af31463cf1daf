package keymap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// DefaultReloadDelay coalesces bursts of file writes into one reload.
const DefaultReloadDelay = 100 * time.Millisecond

// Watcher reloads a keymap file into a live Keymap when it changes.
// Saved overrides are replayed on top of the reloaded file.
type Watcher struct {
	Path   string
	Keymap *Keymap
	Store  *Store
	Delay  time.Duration
	// OnReload is called after every reload attempt.
	OnReload func(error)
}

// Reload loads the file once and applies it.
func (w *Watcher) Reload(ctx context.Context) error {
	loaded, err := LoadFile(w.Path)
	if err != nil {
		return err
	}
	if w.Store != nil {
		if err := w.Store.ApplyTo(ctx, loaded); err != nil {
			glog.Warningf("keymap overrides: %v", err)
		}
	}
	if err := w.Keymap.Apply(loaded); err != nil {
		return fmt.Errorf("apply %s: %w", w.Path, err)
	}
	return nil
}

// Run implements Runnable.
func (w *Watcher) Run(ctx context.Context) error {
	absPath, err := filepath.Abs(w.Path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	// editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	delay := w.Delay
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	var timer *time.Timer
	var timerCh <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(delay)
			} else {
				timer.Reset(delay)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			err := w.Reload(ctx)
			if err != nil {
				glog.Warningf("reload keymap %s: %v", w.Path, err)
			} else {
				glog.Infof("keymap reloaded from %s", w.Path)
			}
			if w.OnReload != nil {
				w.OnReload(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			glog.Warningf("keymap watcher: %v", err)
		}
	}
}
