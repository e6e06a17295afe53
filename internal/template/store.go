package template

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/v2clash/internal/fetch"
)

// Loader hands out a freshly parsed Document for every call, so concurrent
// batches never share a tree.
type Loader interface {
	Load(ctx context.Context) (*Document, error)
}

// NewLoader picks a RemoteLoader for http(s) references and a file Store for
// everything else.
func NewLoader(ref string, opt fetch.Options, log logrus.FieldLogger) Loader {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return NewRemoteLoader(ref, opt)
	}
	return NewStore(ref, log)
}

const defaultDebounce = 100 * time.Millisecond

// Store caches a template file's bytes. The file is read on first use and
// again on Reload or, while Watch runs, whenever it changes on disk.
type Store struct {
	path     string
	log      logrus.FieldLogger
	debounce time.Duration

	mu     sync.RWMutex
	data   []byte
	loaded bool
}

func NewStore(path string, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		path:     path,
		log:      log.WithField("template", path),
		debounce: defaultDebounce,
	}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context) (*Document, error) {
	s.mu.RLock()
	data, loaded := s.data, s.loaded
	s.mu.RUnlock()

	if !loaded {
		if err := s.Reload(); err != nil {
			return nil, err
		}
		s.mu.RLock()
		data = s.data
		s.mu.RUnlock()
	}
	return Parse(s.path, data)
}

// Reload re-reads the file and replaces the cache only if the new content
// parses. A failed reload keeps the last good template.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return unreadable("load_template", s.path, "读取模板文件失败", err)
	}
	if _, err := Parse(s.path, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = data
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Watch reloads the template when its file is written, created or renamed
// into place. It watches the parent directory so editors that replace the
// file atomically are seen too. Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(s.path)
	dir := filepath.Dir(target)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.log.WithField("debounce_ms", s.debounce.Milliseconds()).Info("template watcher started")

	d := newDebouncer(s.debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("template watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.log.WithField("op", ev.Op.String()).Debug("template file event")
			d.trigger(func() {
				if err := s.Reload(); err != nil {
					s.log.WithError(err).Error("template reload failed, keeping previous version")
					return
				}
				s.log.Info("template reloaded")
			})

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			s.log.WithError(err).Warn("template watcher error")
		}
	}
}

// debouncer collapses bursts of file events into one callback after a quiet
// period.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// RemoteLoader downloads the template on every Load.
type RemoteLoader struct {
	URL     string
	Options fetch.Options
}

func NewRemoteLoader(url string, opt fetch.Options) *RemoteLoader {
	return &RemoteLoader{URL: url, Options: opt}
}

func (r *RemoteLoader) Load(ctx context.Context) (*Document, error) {
	resp, err := fetch.Fetch(ctx, fetch.KindTemplate, r.URL, r.Options)
	if err != nil {
		return nil, unreadable("fetch_template", r.URL, "拉取远程模板失败", err)
	}
	return Parse(r.URL, []byte(resp.Text))
}
