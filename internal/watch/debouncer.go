package watch

import (
	"sync"
	"time"
)

// debouncer collects changed paths and flushes them once no new change has
// arrived for the window.
type debouncer struct {
	window  time.Duration
	paths   map[string]struct{}
	mu      sync.Mutex
	timer   *time.Timer
	onFlush func([]string)
	stopped bool
}

func newDebouncer(window time.Duration, onFlush func([]string)) *debouncer {
	return &debouncer{
		window:  window,
		paths:   make(map[string]struct{}),
		onFlush: onFlush,
	}
}

func (d *debouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.paths[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.paths) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	d.paths = make(map[string]struct{})
	d.timer = nil
	d.mu.Unlock()

	d.onFlush(paths)
}

// stop drops pending changes.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
