package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
)

// WatchPolicyFile reloads path into snapshot on every write event, matching
// spec §4.3's "overrides are sourced from a file" optional watch path.
// Reload errors are logged and leave the snapshot at its last-good value.
func WatchPolicyFile(path string, snapshot *browserkernel.PolicySnapshot, log *slog.Logger) (*fsnotify.Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config: policy file reload failed", "path", path, "error", err)
					continue
				}
				snapshot.Update(cfg.PolicyValues())
				log.Info("config: policy file reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config: policy watcher error", "error", err)
			}
		}
	}()

	return watcher, nil
}
