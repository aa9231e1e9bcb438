package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wanman/gerber/internal/adminapi"
	"github.com/wanman/gerber/internal/autoscan"
	"github.com/wanman/gerber/internal/config"
	"github.com/wanman/gerber/internal/content"
	"github.com/wanman/gerber/internal/logging"
	"github.com/wanman/gerber/internal/storage"
	"github.com/wanman/gerber/internal/watching"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "start the watcher and admin HTTP surface",
	RunE:  serveMain,
}

func init() {
	serveCommand.Flags().SortFlags = false
}

// serveMain wires config -> storage -> autoscan list -> content manager ->
// watcher -> admin API, then blocks until an interrupt or termination
// signal: acquire resources, start servers in goroutines, select on the
// stop signal and any server error, and always clean up via defer.
func serveMain(command *cobra.Command, arguments []string) error {
	cfg, err := config.Load(rootConfiguration.configPath)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	logging.SetLevel(cfg.LogLevel())

	logger := logging.RootLogger.Sublogger("gerber")

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}
	defer store.Close()

	list := autoscan.NewList()
	ctx := context.Background()
	persisted, err := store.AutoscanDirectories(ctx)
	if err != nil {
		return fmt.Errorf("unable to load persisted autoscan directories: %w", err)
	}
	for _, dir := range persisted {
		list.Add(dir)
	}
	if len(persisted) == 0 {
		seedAutoscansFromConfig(cfg, list)
		for _, dir := range list.All() {
			if err := store.SaveAutoscanDirectory(ctx, dir); err != nil {
				return fmt.Errorf("unable to persist seeded autoscan directory: %w", err)
			}
		}
	}

	contentManager := content.NewDefaultManager(logger.Sublogger("content"), list, 0)
	defer contentManager.Shutdown()

	watcher := watching.New(logger.Sublogger("watching"), contentManager, list, watching.Config{
		ImportHiddenFiles: cfg.Import.Hidden,
		FollowSymlinks:    cfg.Import.FollowSymlinks,
	})
	if err := watcher.Init(); err != nil {
		return fmt.Errorf("unable to start watcher: %w", err)
	}
	defer watcher.Shutdown()

	for _, dir := range list.All() {
		watcher.Monitor(dir)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.WebPort),
		Handler: adminapi.NewRouter(list, watcher),
	}
	serverErrors := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case <-signals:
		logger.Info("received termination signal, shutting down")
	case err := <-serverErrors:
		return fmt.Errorf("admin server failed: %w", err)
	}

	return nil
}

// seedAutoscansFromConfig populates list from the YAML autoscan block on
// first boot, when storage has no persisted autoscans yet. The YAML list is
// a convenience seed for first boot only; afterwards storage is
// authoritative.
func seedAutoscansFromConfig(cfg config.Config, list *autoscan.List) {
	for _, seed := range cfg.Autoscan {
		dir := &autoscan.Directory{
			ID:         uuid.New(),
			Path:       seed.Path,
			Recursive:  seed.Recursive,
			ScanLevel:  seed.Level(),
			Persistent: true,
		}
		list.Add(dir)
	}
}
