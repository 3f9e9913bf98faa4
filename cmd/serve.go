package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/datapages/splitsearch/pkg/api"
	"github.com/datapages/splitsearch/pkg/config"
	"github.com/datapages/splitsearch/pkg/log"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the search API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "Port to listen on",
				Value: "8080",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to",
				Value: "localhost",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("host"), c.String("port"))
		},
	}
}

func serve(ctx context.Context, configPath, host, port string) error {
	logger := log.ForService("serve")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		logger.Warnf("starting with empty catalog: %v", err)
		cat = nil
	} else {
		logger.Infof("catalog loaded with %d splits from %s", cat.Len(), cfg.CatalogPath)
	}

	server := api.NewServer(cfg, cat, newFetcher(cfg), newEngine(cfg))

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         host + ":" + port,
		Handler:      api.CorsMiddleware(api.RequestLogMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // chunked scans over large indexes take a while
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on http://%s:%s", host, port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// Watch the catalog manifest so the indexing pipeline can publish new
	// splits without a restart.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create catalog watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("closing catalog watcher: %v", err)
			}
		}()

		if err := watcher.Add(cfg.CatalogPath); err != nil {
			logger.Warnf("failed to watch catalog %s: %v", cfg.CatalogPath, err)
		} else {
			logger.Infof("watching catalog for changes: %s", cfg.CatalogPath)
		}
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if watcher != nil {
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)

		case <-ctx.Done():
			return shutdown(httpServer, logger)

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("received SIGHUP, reloading catalog")
				reloadCatalog(cfg, server, logger)
			case syscall.SIGINT, syscall.SIGTERM:
				return shutdown(httpServer, logger)
			}

		case event, ok := <-events:
			if !ok {
				continue
			}
			// Editors and pipelines often replace the file atomically, so
			// rename/remove usually means a rewrite, not a deletion.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					time.Sleep(200 * time.Millisecond)
					if _, err := os.Stat(cfg.CatalogPath); os.IsNotExist(err) {
						logger.Warnf("catalog removed and not replaced, keeping last snapshot")
						continue
					}
					if err := watcher.Add(cfg.CatalogPath); err != nil {
						logger.Warnf("failed to re-add catalog to watcher: %v", err)
					}
				} else {
					time.Sleep(100 * time.Millisecond)
				}
				logger.Infof("catalog changed (%s), reloading", event.Op)
				reloadCatalog(cfg, server, logger)
			}

		case err, ok := <-watchErrs:
			if !ok {
				continue
			}
			logger.Warnf("catalog watcher error: %v", err)
		}
	}
}

func reloadCatalog(cfg *config.Config, server *api.Server, logger *log.Logger) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		logger.Errorf("reloading catalog: %v", err)
		return
	}
	server.SetCatalog(cat)
	logger.Infof("catalog reloaded with %d splits", cat.Len())
}

func shutdown(httpServer *http.Server, logger *log.Logger) error {
	logger.Infof("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
