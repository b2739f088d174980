package files

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"adorable/internal/logging"
)

const defaultReloadDebounce = 300 * time.Millisecond

// TemplateWatcher serves a template loaded from a directory and reloads it
// when files under the directory change. A failed reload keeps the previous
// template.
type TemplateWatcher struct {
	dir      string
	current  atomic.Pointer[Template]
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onReload func(*Template)

	done     chan struct{}
	stopOnce sync.Once
}

// NewTemplateWatcher loads dir and starts watching it.
func NewTemplateWatcher(dir string) (*TemplateWatcher, error) {
	tmpl, err := LoadTemplateDir(dir)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &TemplateWatcher{
		dir:      dir,
		fsw:      fsw,
		debounce: defaultReloadDebounce,
		done:     make(chan struct{}),
	}
	w.current.Store(tmpl)

	for _, sub := range directories(tmpl, dir) {
		if err := fsw.Add(sub); err != nil {
			logging.Debug("template watch add failed", "dir", sub, "error", err)
		}
	}

	go w.loop()
	return w, nil
}

func directories(t *Template, root string) []string {
	seen := map[string]bool{root: true}
	dirs := []string{root}
	for _, p := range t.files.Paths() {
		for d := parentDir(p); d != ""; d = parentDir(d) {
			full := filepath.Join(root, filepath.FromSlash(d))
			if !seen[full] {
				seen[full] = true
				dirs = append(dirs, full)
			}
		}
	}
	return dirs
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return ""
}

// OnReload registers a callback invoked after each successful reload.
// Must be called before any change is observed.
func (w *TemplateWatcher) OnReload(fn func(*Template)) {
	w.onReload = fn
}

// Current returns the latest loaded template.
func (w *TemplateWatcher) Current() *Template {
	return w.current.Load()
}

// Close stops watching.
func (w *TemplateWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *TemplateWatcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("template watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *TemplateWatcher) reload() {
	tmpl, err := LoadTemplateDir(w.dir)
	if err != nil {
		logging.Warn("template reload failed, keeping previous", "dir", w.dir, "error", err)
		return
	}
	w.current.Store(tmpl)
	logging.Info("template reloaded", "dir", w.dir, "files", len(tmpl.files))
	if w.onReload != nil {
		w.onReload(tmpl)
	}
}
