package config

import (
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ethereum/go-ethereum/log"
)

// Watcher re-parses a mounted env file into a full Config (via LoadFromEnv)
// whenever the file is written or created, and exposes the latest result
// through Current. It does not change what Load returns or the Config the
// Handler was built with.
//
// This is purely additive ops scaffolding; no gateway component reads
// Current, and cmd/gateway does not create a Watcher.
type Watcher struct {
	mu     sync.RWMutex
	path   string
	latest *Config
	watch  *fsnotify.Watcher
}

// NewWatcher loads path once and starts watching it for writes. Callers
// should call Close when done.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w.watch = fw

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				log.Warn("gateway config: reload failed", "path", w.path, "err", err)
			}
		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			log.Warn("gateway config: watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(data), "\n")
	cfg, err := LoadFromEnv(lines)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.latest = cfg
	w.mu.Unlock()
	log.Info("gateway config: reloaded", "path", w.path)
	return nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	if w.watch == nil {
		return nil
	}
	return w.watch.Close()
}
