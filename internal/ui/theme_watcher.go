package ui

import (
	"context"
	"log/slog"
	"sync"

	dark "github.com/thiagokokada/dark-mode-go"
)

// ThemeWatcher follows the OS dark mode setting while the theme is "system".
type ThemeWatcher struct {
	changes   chan bool // true=dark, false=light
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewThemeWatcher starts watching. It returns nil when the OS offers no way
// to watch, in which case the theme resolved at startup stays.
func NewThemeWatcher(parent context.Context) *ThemeWatcher {
	ctx, cancel := context.WithCancel(parent)

	events, errs, err := dark.WatchDarkMode(ctx)
	if err != nil {
		cancel()
		uiLog.Warn("theme_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}

	tw := &ThemeWatcher{
		changes: make(chan bool, 1),
		closeCh: make(chan struct{}),
	}
	go tw.loop(cancel, events, errs)
	return tw
}

func (tw *ThemeWatcher) loop(cancel context.CancelFunc, events <-chan bool, errs <-chan error) {
	defer cancel()
	for {
		select {
		case <-tw.closeCh:
			return
		case isDark, ok := <-events:
			if !ok {
				return
			}
			// Keep only the latest setting if the UI has not caught up.
			select {
			case <-tw.changes:
			default:
			}
			tw.changes <- isDark
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				uiLog.Warn("theme_watcher_error", slog.String("error", err.Error()))
			}
		}
	}
}

// Changes delivers the new dark mode state after each OS switch.
func (tw *ThemeWatcher) Changes() <-chan bool {
	return tw.changes
}

// Close stops the watcher. Safe to call multiple times.
func (tw *ThemeWatcher) Close() {
	tw.closeOnce.Do(func() {
		close(tw.closeCh)
	})
}

// themeFor maps a dark mode state to a theme name.
func themeFor(isDark bool) string {
	if isDark {
		return string(ThemeDark)
	}
	return string(ThemeLight)
}
