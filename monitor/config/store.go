package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"code.cloudfoundry.org/lager/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/tedsuo/ifrit"

	"github.com/healthmonitor/agent/models"
)

type ReloadHook func(*Config)

// Store owns the configuration file. Readers take the snapshot returned by
// Current and never observe a partially applied reload.
type Store struct {
	path     string
	logger   lager.Logger
	readFile func(string) ([]byte, error)

	current atomic.Pointer[Config]

	reloadLock sync.Mutex
	checksum   [sha256.Size]byte
	hooks      []ReloadHook
}

func NewStore(logger lager.Logger, path string) *Store {
	return &Store{
		path:     path,
		logger:   logger.Session("config-store", lager.Data{"path": path}),
		readFile: os.ReadFile,
	}
}

// SetLogger replaces the logger the store was created with. Startup loads
// the file before the configured logger exists and hands it over here.
func (s *Store) SetLogger(logger lager.Logger) {
	s.reloadLock.Lock()
	defer s.reloadLock.Unlock()
	s.logger = logger.Session("config-store", lager.Data{"path": s.path})
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the file for the first time. Any problem is fatal to startup.
func (s *Store) Load() (*Config, error) {
	s.reloadLock.Lock()
	defer s.reloadLock.Unlock()

	data, err := s.readFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file '%s': %w", models.ErrConfigInvalid, s.path, err)
	}
	conf, err := Parse(data, FormatForPath(s.path))
	if err != nil {
		return nil, err
	}
	s.checksum = sha256.Sum256(data)
	s.current.Store(conf)
	return conf, nil
}

func (s *Store) Current() *Config {
	return s.current.Load()
}

// OnReload registers fn to run after every reload that changed the snapshot.
func (s *Store) OnReload(fn ReloadHook) {
	s.reloadLock.Lock()
	defer s.reloadLock.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Refresh re-reads the file if its content changed. On failure the previous
// snapshot is kept and returned together with an ErrConfigReloadFailed.
func (s *Store) Refresh() (*Config, error) {
	s.reloadLock.Lock()
	defer s.reloadLock.Unlock()

	previous := s.current.Load()
	data, err := s.readFile(s.path)
	if err != nil {
		return previous, s.reloadFailed(err)
	}
	checksum := sha256.Sum256(data)
	if checksum == s.checksum && previous != nil {
		return previous, nil
	}

	conf, err := Parse(data, FormatForPath(s.path))
	if err != nil {
		return previous, s.reloadFailed(err)
	}
	s.checksum = checksum
	s.current.Store(conf)
	s.logger.Info("config-reloaded", lager.Data{"resources": conf.ConfiguredKinds()})
	for _, hook := range s.hooks {
		hook(conf)
	}
	return conf, nil
}

// reloadFailed logs at info: the previous snapshot stays in effect, so the
// failure is not fatal.
func (s *Store) reloadFailed(err error) error {
	s.logger.Info("config-reload-failed", lager.Data{"error": err.Error()})
	return fmt.Errorf("%w: %w", models.ErrConfigReloadFailed, err)
}

// Watcher refreshes the store as soon as the file changes on disk, so that a
// long sleep between cycles does not delay a reload. The loop also refreshes
// at every cycle start, which makes the watcher optional.
func (s *Store) Watcher() ifrit.Runner {
	return &watcher{store: s, logger: s.logger.Session("watcher")}
}

type watcher struct {
	store  *Store
	logger lager.Logger
}

func (w *watcher) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed-to-create-watcher", err)
		return w.idle(signals, ready)
	}
	defer func() { _ = fsWatcher.Close() }()

	// Editors replace files by rename, so the directory is watched rather
	// than the file itself.
	dir := filepath.Dir(w.store.path)
	if err := fsWatcher.Add(dir); err != nil {
		w.logger.Error("failed-to-watch-config-dir", err, lager.Data{"dir": dir})
		return w.idle(signals, ready)
	}
	close(ready)
	w.logger.Info("started")

	target := filepath.Clean(w.store.path)
	for {
		select {
		case <-signals:
			w.logger.Info("stopped")
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.logger.Debug("config-file-changed", lager.Data{"op": event.Op.String()})
			_, _ = w.store.Refresh()
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch-error", err)
		}
	}
}

func (w *watcher) idle(signals <-chan os.Signal, ready chan<- struct{}) error {
	close(ready)
	<-signals
	return nil
}
