//go:build !windows

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asheshgoplani/recall/internal/logging"
)

// watchDumpSignal writes the in-memory log ring buffer to dir on SIGUSR1.
func watchDumpSignal(dir string) {
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				cliLog.Error("crash_dump_failed", slog.String("error", err.Error()))
			} else {
				cliLog.Info("crash_dump_written", slog.String("path", dumpPath))
			}
		}
	}()
}
