package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// RulesWatcherConfig configures RulesWatcher.
type RulesWatcherConfig struct {
	Path   string
	Base   leveling.Rules
	Holder *RulesHolder

	// Debounce collapses bursts of writes into one reload.
	Debounce time.Duration

	// OnReload runs after a new snapshot is stored.
	OnReload func(*leveling.Rules)

	Logger *slog.Logger
}

// RulesWatcher reloads the rules file when it changes. An invalid file is
// logged and the previous snapshot stays active.
type RulesWatcher struct {
	cfg     RulesWatcherConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewRulesWatcher creates a watcher on the directory holding the rules
// file, so editors that replace the file on save are still observed.
func NewRulesWatcher(cfg RulesWatcherConfig) (*RulesWatcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("rules watcher: path is required")
	}
	if cfg.Holder == nil {
		return nil, errors.New("rules watcher: holder is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("rules watcher: %w", err)
	}
	cfg.Path = abs

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rules watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("rules watcher: watch %s: %w", filepath.Dir(abs), err)
	}

	return &RulesWatcher{
		cfg:     cfg,
		watcher: fsw,
		logger:  cfg.Logger.With(logger.Component("rules_watcher"), slog.String("path", abs)),
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *RulesWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.cfg.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = true
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rules watcher error", logger.Err(err))

		case <-ticker.C:
			if pending {
				pending = false
				_ = w.Reload()
			}
		}
	}
}

// Reload reads the file now. On failure the current snapshot is kept.
func (w *RulesWatcher) Reload() error {
	rules, err := LoadRules(w.cfg.Base, w.cfg.Path)
	if err != nil {
		w.logger.Warn("rejected rules file, keeping previous rules", logger.Err(err))
		return err
	}

	w.cfg.Holder.Store(rules)
	w.logger.Info("rules reloaded",
		slog.Int64("rate_limit_xp", rules.RateLimit.MaxXP),
		slog.Duration("rate_limit_window", rules.RateLimit.Window),
		slog.String("timezone", rules.Location.String()),
	)
	if w.cfg.OnReload != nil {
		w.cfg.OnReload(rules)
	}
	return nil
}
