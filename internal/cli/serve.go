package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fusebox-ai/fusebox/internal/config"
	"github.com/fusebox-ai/fusebox/internal/health"
	"github.com/fusebox-ai/fusebox/internal/memory"
	"github.com/fusebox-ai/fusebox/internal/orchestrator"
	"github.com/fusebox-ai/fusebox/internal/registry"
	"github.com/fusebox-ai/fusebox/internal/server"
	"github.com/fusebox-ai/fusebox/internal/store"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config file (default ~/.fusebox/config.toml)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := serveConfigPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mem, err := memory.New(db)
	if err != nil {
		return fmt.Errorf("init memory store: %w", err)
	}
	mem.StartMaintenanceTimer()
	defer mem.Stop()

	reg, err := registry.New(db)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}

	mon := health.New(reg, mem, health.Config{
		FailureThreshold: cfg.Health.FailureThreshold,
		ProbeTimeout:     cfg.ProbeTimeout(),
	})
	mon.Start(cfg.ProbeInterval())
	defer mon.Stop()

	orch := orchestrator.New(reg, mem, mon, orchestrator.Config{
		Defaults:      cfg.Strategy(),
		SourceTimeout: cfg.SourceTimeout(),
		MaxParallel:   cfg.Search.MaxParallel,
	})

	srv := server.New(reg, orch, mon, mem, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "fusebox serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  sources: %d\n", len(reg.List("")))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
