// Package main provides a meeting recorder daemon that watches a browser for
// active calls, captures their audio alongside the microphone, and persists
// finalized recordings with their metadata.
//
// Usage:
//
//	meetcap [-config path/to/config.json]
//
// If -config is not specified, the daemon looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/meetcap/meetcap/internal/capture"
	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/coordinator"
	"github.com/meetcap/meetcap/internal/eventlog"
	"github.com/meetcap/meetcap/internal/notify"
	"github.com/meetcap/meetcap/internal/observer"
	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/store"
	"github.com/meetcap/meetcap/internal/transcript"
	"github.com/meetcap/meetcap/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// Check FFmpeg availability
	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	if ffmpegPath == "" {
		slog.Warn("FFmpeg not found - recordings cannot start until it is installed",
			"configured_path", snap.FFmpegPath)
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	events, err := eventlog.NewLogger(filepath.Join(snap.DataDir, "events.jsonl"))
	if err != nil {
		slog.Warn("event log unavailable", "error", err)
	}

	storageCfg := snap.Storage
	st, err := store.New(snap.DataDir, &storageCfg)
	if err != nil {
		slog.Error("failed to initialize recording store", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Attach to the browser's DevTools endpoint, or launch a browser when no
	// control URL is configured. A missing browser degrades to history and
	// settings access only; recording needs an observable call tab.
	browser, err := observer.Connect(ctx, snap.BrowserURL)
	browserOnline := err == nil
	if !browserOnline {
		slog.Warn("browser not reachable - running in degraded mode",
			"control_url", snap.BrowserURL, "error", err)
	}

	// The observer, worker, and coordinator reference each other through
	// closures; the goroutines only start once all three exist.
	var coord *coordinator.Coordinator

	obs := observer.New(browser, cfg.Meeting, func(o protocol.CallObservation, tabID string) {
		coord.ReportCallStatus(o, tabID)
	})

	transcripts := func(ctx context.Context) (capture.TranscriptSink, error) {
		s := cfg.Snapshot()
		if !s.TranscriptOn || s.TranscriptWSURL == "" {
			return transcript.Noop{}, nil
		}
		return transcript.Connect(ctx, s.TranscriptWSURL)
	}

	worker := capture.NewWorker(ffmpegPath, "", obs, transcripts,
		func(rec *protocol.FinalizedRecording, meta *protocol.SessionMetadata, err error) {
			coord.Finalized(rec, meta, err)
		})

	panel := observer.NewPanel(browser, func(msgType string) {
		coord.Dispatch(ctx, &protocol.Message{Type: msgType})
	})

	var srv *Server
	coord = coordinator.New(cfg, worker, obs, st, events, func(state protocol.RecordingState) {
		if srv != nil {
			srv.PushState(state)
		}
		if browserOnline && state.CallTabID != "" {
			if cfg.CurrentSettings().OnScreenBadge {
				panel.Render(state.CallTabID, &state)
			} else {
				panel.Remove(state.CallTabID)
			}
		}
	})

	notifier := notify.New(cfg, st.Mirror(), events)
	coord.OnFinalized(notifier.RecordingFinalized)

	srv = NewServer(cfg, coord, notifier, browserOnline)
	httpServer := srv.Start()

	go worker.Run(ctx)
	go coord.Run(ctx)
	if browserOnline {
		go obs.Run(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stops the observer, coordinator, and any live capture session.
	cancel()

	if browser != nil {
		if err := browser.Close(); err != nil {
			slog.Error("error closing browser connection", "error", err)
		}
	}
	if err := events.Close(); err != nil {
		slog.Error("error closing event log", "error", err)
	}

	slog.Info("shutdown complete")
}
