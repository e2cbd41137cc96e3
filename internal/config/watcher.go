package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc receives the effective changes of a reload and the reloaded
// config with defaults applied.
type ReloadFunc func(d ConfigDiff, next *Config)

// Watcher polls a config file and reports reloads that change the effective
// configuration. Edits that fail validation are logged and ignored; the
// previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	stamp   fileStamp

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// fileStamp identifies one version of the file on disk.
type fileStamp struct {
	modNanos int64
	size     int64
}

func stampOf(fi os.FileInfo) fileStamp {
	return fileStamp{modNanos: fi.ModTime().UnixNano(), size: fi.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger used for reload messages.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and starts polling it. onReload may be nil.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		log:      slog.Default(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp

	go w.loop()
	return w, nil
}

// Current returns the last valid config, with defaults applied.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for a reload in progress. It is safe to call
// more than once but must not be called from the ReloadFunc.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.reload()
		}
	}
}

// reload re-reads the file when its stamp moved.
func (w *Watcher) reload() {
	fi, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config: watch: stat failed", "path", w.path, "err", err)
		return
	}
	stamp := stampOf(fi)

	w.mu.Lock()
	unchanged := stamp == w.stamp
	w.mu.Unlock()
	if unchanged {
		return
	}

	next, stamp, err := w.read()
	if err != nil {
		w.log.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		w.mu.Lock()
		w.stamp = stampOf(fi)
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current, w.stamp = next, stamp
	w.mu.Unlock()

	d := Diff(prev, next)
	if d.Empty() {
		w.log.Debug("config: file changed without effect", "path", w.path)
		return
	}
	w.log.Info("config: reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"voices_changed", d.VoicesChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(d, next)
	}
}

// read parses and validates the file and applies defaults.
func (w *Watcher) read() (*Config, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fileStamp{}, err
	}
	c := cfg.WithDefaults()
	return &c, stampOf(fi), nil
}
