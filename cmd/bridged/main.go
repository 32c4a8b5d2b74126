package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bridged/internal/config"
	"bridged/internal/daemon"
	"bridged/internal/httpapi"
	"bridged/internal/supervisor"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := "127.0.0.1:8765"
	if v := os.Getenv("BRIDGED_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "control API listen address, e.g. 127.0.0.1:8765")
	configPath := flag.String("config", "", "optional config file (.yaml/.json/.toml)")
	backendScript := flag.String("backend-script", "python-backend/ipc_server_fixed.py", "backend entry point")
	backendDir := flag.String("backend-dir", "python-backend", "backend working directory")
	pythonBin := flag.String("python-bin", "python3", "python interpreter for the backend")
	prefsPath := flag.String("prefs", "~/.jarvis/preferences.json", "preference store path")
	corsEnabled := flag.Bool("cors-enabled", false, "enable CORS for the control API")
	corsOrigins := flag.String("cors-origins", "", "comma-separated allowed origins")
	flag.Parse()

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if cfg.Addr != "" {
			*addr = cfg.Addr
		}
		if cfg.BackendScript != "" {
			*backendScript = cfg.BackendScript
		}
		if cfg.BackendDir != "" {
			*backendDir = cfg.BackendDir
		}
		if cfg.PythonBin != "" {
			*pythonBin = cfg.PythonBin
		}
		if cfg.PrefsPath != "" {
			*prefsPath = cfg.PrefsPath
		}
		if cfg.CORSEnabled {
			*corsEnabled = true
		}
		if cfg.CORSOrigins != "" {
			*corsOrigins = cfg.CORSOrigins
		}
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	httpapi.SetLogger(logger)

	if *corsEnabled {
		origins := strings.Split(*corsOrigins, ",")
		httpapi.SetCORSOptions(true, origins,
			[]string{"GET", "POST", "PUT", "OPTIONS"},
			[]string{"Content-Type", "X-Log-Level"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	httpapi.SetBaseContext(ctx)

	d, err := daemon.New(daemon.Config{
		Supervisor: supervisor.Config{
			PythonBin: *pythonBin,
			Script:    *backendScript,
			Dir:       *backendDir,
		},
		PrefsPath: *prefsPath,
	}, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	d.Start(ctx)

	mux := httpapi.NewMux(d)
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", *addr).Msg("bridged listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	d.Stop()
}
