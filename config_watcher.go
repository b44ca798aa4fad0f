package eventadmin

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher hot-reloads LogLevel and MetricsEnabled from a YAML config file
// whenever it changes on disk, the way the teacher's own fsnotify-backed watcher
// lets operators tune logging without a restart. N, Q, P and T are never
// reloaded: the worker pool and queue are fixed at Start time (spec §4.6/§4.8).
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	admin    *Admin
	logLevel *slog.LevelVar
	done     chan struct{}
}

// NewConfigWatcher opens an fsnotify watch on path and wires reloads into admin's
// logger level and metrics toggle. levelVar, if non-nil, is updated in place so a
// *slog.Logger built with it picks up the new level without reconstruction.
func NewConfigWatcher(path string, admin *Admin, levelVar *slog.LevelVar) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	cw := &ConfigWatcher{path: path, watcher: w, admin: admin, logLevel: levelVar, done: make(chan struct{})}
	go cw.loop()
	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.reload()
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := LoadConfigYAML(cw.path)
	if err != nil {
		cw.admin.logger.Warn("config reload failed, keeping previous values", "path", cw.path, "error", err)
		return
	}
	if cw.logLevel != nil {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			cw.logLevel.Set(level)
		}
	}
	cw.admin.config.MetricsEnabled = cfg.MetricsEnabled
	cw.admin.logger.Info("config reloaded", "path", cw.path, "log_level", cfg.LogLevel, "metrics_enabled", cfg.MetricsEnabled)
}

// Close stops the watcher.
func (cw *ConfigWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done
	return err
}
