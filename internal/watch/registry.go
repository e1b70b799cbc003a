// Package watch shares one native file watch per path across any number of
// subscribers. Files are watched through their parent directory so that a
// file which does not exist yet, or which is replaced by an atomic rename,
// stays observable.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"
)

// DefaultRetryInterval is how often unarmed directories are retried.
const DefaultRetryInterval = time.Second

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("watch registry closed")

// Options configures a Registry.
type Options struct {
	// RetryInterval controls how often a watch whose directory does not
	// exist yet is re-attempted. Zero means DefaultRetryInterval.
	RetryInterval time.Duration
	Logger        *slog.Logger
}

// Registry maps canonical file paths to subscribers.
//
// The path and directory tables are the only shared mutable state; every
// mutation happens under mu and no blocking operation (channel send, event
// wait) is performed while it is held.
type Registry struct {
	watcher *fsnotify.Watcher
	retry   time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	paths  map[string]*watchedPath
	dirs   map[string]*watchedDir
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

type watchedPath struct {
	dir  string
	subs map[string]*Subscription
}

type watchedDir struct {
	refs  int // watched paths inside this directory
	armed bool
}

// NewRegistry creates a registry and starts its event loop.
func NewRegistry(opts Options) (*Registry, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		watcher: w,
		retry:   opts.RetryInterval,
		log:     opts.Logger,
		paths:   make(map[string]*watchedPath),
		dirs:    make(map[string]*watchedDir),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

// Canonical returns the absolute, cleaned form of path with symlinks in its
// directory resolved. Only the longest existing ancestor is resolved and
// the missing components are appended back, so a path keeps the same key
// before and after its directory is created.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	dir, base := filepath.Split(abs)
	dir = filepath.Clean(dir)

	var missing []string
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			parts := append([]string{resolved}, missing...)
			return filepath.Join(append(parts, base)...), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		missing = append([]string{filepath.Base(dir)}, missing...)
		dir = parent
	}
}

// Subscribe registers interest in path. The returned subscription receives
// a value on C whenever the file is written or (re)created. A path that does
// not exist yet is accepted; its watch is armed once the directory appears.
func (r *Registry) Subscribe(path string) (*Subscription, error) {
	canonical, err := Canonical(path)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:   ulid.Make().String(),
		Path: canonical,
		c:    make(chan struct{}, 1),
		reg:  r,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	wp, ok := r.paths[canonical]
	if !ok {
		dir := filepath.Dir(canonical)
		wp = &watchedPath{dir: dir, subs: make(map[string]*Subscription)}
		r.paths[canonical] = wp

		wd, ok := r.dirs[dir]
		if !ok {
			wd = &watchedDir{}
			r.dirs[dir] = wd
		}
		wd.refs++
		if !wd.armed {
			r.arm(dir, wd)
		}
	}
	wp.subs[sub.ID] = sub

	r.log.Debug("watch subscribed", "path", canonical, "subscription", sub.ID, "subscribers", len(wp.subs))
	return sub, nil
}

// Unsubscribe removes sub. It is safe to call more than once.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	wp, ok := r.paths[sub.Path]
	if !ok {
		return
	}
	if _, ok := wp.subs[sub.ID]; !ok {
		return
	}
	delete(wp.subs, sub.ID)
	close(sub.c)

	r.log.Debug("watch unsubscribed", "path", sub.Path, "subscription", sub.ID, "subscribers", len(wp.subs))

	if len(wp.subs) > 0 {
		return
	}
	delete(r.paths, sub.Path)

	wd := r.dirs[wp.dir]
	if wd == nil {
		return
	}
	wd.refs--
	if wd.refs > 0 {
		return
	}
	delete(r.dirs, wp.dir)
	if wd.armed {
		// The directory may already be gone, in which case fsnotify has
		// dropped the watch on its own.
		if err := r.watcher.Remove(wp.dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			r.log.Debug("remove watch", "dir", wp.dir, "error", err)
		}
		r.log.Debug("watch released", "dir", wp.dir)
	}
}

// Watches returns the number of native watches currently held.
func (r *Registry) Watches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, wd := range r.dirs {
		if wd.armed {
			n++
		}
	}
	return n
}

// Paths returns the number of paths with at least one subscriber.
func (r *Registry) Paths() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

// Subscribers returns the subscriber count for path.
func (r *Registry) Subscribers(path string) int {
	canonical, err := Canonical(path)
	if err != nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if wp, ok := r.paths[canonical]; ok {
		return len(wp.subs)
	}
	return 0
}

// Close stops the event loop, releases the native watcher and closes every
// remaining subscription channel.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for path, wp := range r.paths {
		for id, sub := range wp.subs {
			delete(wp.subs, id)
			close(sub.c)
		}
		delete(r.paths, path)
	}
	clear(r.dirs)
	r.mu.Unlock()

	close(r.done)
	err := r.watcher.Close()
	r.wg.Wait()
	return err
}

// arm tries to place the native watch on dir. Must be called with mu held.
func (r *Registry) arm(dir string, wd *watchedDir) bool {
	if err := r.watcher.Add(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("watch directory", "dir", dir, "error", err)
		}
		return false
	}
	wd.armed = true
	r.log.Debug("watch armed", "dir", dir)
	return true
}

func (r *Registry) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handle(ev)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("file watcher error", "error", err)
		case <-ticker.C:
			r.retryPending()
		}
	}
}

func (r *Registry) handle(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	// A watched directory that disappears loses its native watch; mark it
	// so the retry loop re-arms it when it comes back.
	if wd, ok := r.dirs[name]; ok && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
		wd.armed = false
		return
	}

	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if wp, ok := r.paths[name]; ok {
		wp.notify()
	}
}

func (r *Registry) retryPending() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for dir, wd := range r.dirs {
		if wd.armed || !r.arm(dir, wd) {
			continue
		}
		// Anything may have been written before the watch existed.
		for _, wp := range r.paths {
			if wp.dir == dir {
				wp.notify()
			}
		}
	}
}

// notify signals every subscriber without blocking. Must be called with the
// registry lock held.
func (wp *watchedPath) notify() {
	for _, sub := range wp.subs {
		sub.signal()
	}
}
