package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads the policy file on change and swaps it into a Holder.
// A document that fails to load leaves the previous validator in place.
type Watcher struct {
	path     string
	opts     Options
	holder   *Holder
	debounce time.Duration
	onReload func(*Validator, error)

	timerMu      sync.Mutex
	pendingTimer *time.Timer
}

// NewWatcher creates a watcher for the policy document at path.
func NewWatcher(path string, opts Options, holder *Holder) *Watcher {
	return &Watcher{
		path:     path,
		opts:     opts,
		holder:   holder,
		debounce: defaultReloadDebounce,
	}
}

// OnReload registers a callback invoked after every reload attempt.
func (w *Watcher) OnReload(fn func(*Validator, error)) {
	w.onReload = fn
}

// Run watches until ctx is canceled. The parent directory is watched rather
// than the file so editors that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer fsWatcher.Close()

	dir := filepath.Dir(w.path)
	if err := fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watch policy directory %s: %w", dir, err)
	}
	slog.Info("watching policy file", "path", w.path)

	defer func() {
		w.timerMu.Lock()
		if w.pendingTimer != nil {
			w.pendingTimer.Stop()
		}
		w.timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	slog.Debug("policy file changed", "path", event.Name, "op", event.Op.String())

	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, func() {
		_, _ = w.Reload()
	})
}

// Reload loads the document now and swaps it in on success.
func (w *Watcher) Reload() (*Validator, error) {
	p, err := LoadWithOptions(w.path, w.opts)
	if err != nil {
		slog.Error("policy reload failed, keeping previous policy", "path", w.path, "error", err)
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return nil, err
	}

	v := NewValidator(p)
	w.holder.Swap(v)
	slog.Info("policy reloaded", "path", w.path, "commands_enabled", v.CommandsEnabled())
	if w.onReload != nil {
		w.onReload(v, nil)
	}
	return v, nil
}
