package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/api"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/config"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration API server",
	Long: `Start the MATT API server.

The server exposes project management, stage triggers, workflow state,
statistics, report export and an SSE event stream over HTTP.

Examples:
  # Start with defaults (127.0.0.1:8080)
  matt serve

  # Start on a custom host and port
  matt serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"Host address to bind to (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"Port to listen on (default from config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	requestTimeout, err := cfg.Server.ParseRequestTimeout()
	if err != nil {
		return fmt.Errorf("parsing server.request_timeout: %w", err)
	}

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	server := api.NewServer(a.orch, a.agents, a.bus,
		api.WithLogger(logger),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithRequestTimeout(requestTimeout),
	)

	if path := loader.ConfigFile(); path != "" {
		stopWatch, err := watchConfig(path, logger)
		if err != nil {
			logger.Warn("config watch unavailable", "error", err)
		} else {
			defer stopWatch()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	return server.ListenAndServe(ctx, fmt.Sprintf("%s:%d", host, port))
}

// watchConfig re-reads the config file on change and applies the log
// level live. Everything else requires a restart; a level flip is the
// one knob an operator needs while chasing a misbehaving pipeline.
func watchConfig(path string, logger *logging.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace the file on save, which
	// drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	abs, _ := filepath.Abs(path)
	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(event.Name)
				if evAbs != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					applyConfigChange(path, logger)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

func applyConfigChange(path string, logger *logging.Logger) {
	cfg, err := config.NewLoader().WithConfigFile(path).Load()
	if err != nil {
		logger.Warn("config reload failed", "error", err)
		return
	}
	logger.SetLevel(cfg.Log.Level)
	logger.Info("config reloaded", "log_level", cfg.Log.Level)
}
