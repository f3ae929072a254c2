package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/llm-inbox-triage/internal/adapters/runner"
	"github.com/mikey/llm-inbox-triage/internal/adapters/store"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"github.com/mikey/llm-inbox-triage/internal/di"
	"github.com/mikey/llm-inbox-triage/internal/ports"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

var configFile = flag.String("config", "", "Path to config file (searches the default locations if empty)")

func main() {
	flag.Parse()

	// Build the dependency injection container
	container, err := di.BuildContainer(*configFile)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

type deps struct {
	dig.In

	Logger     *zap.Logger
	Runner     ports.Runner
	Classifier core.Classifier
	Store      store.Store
	Dedup      core.DedupStore
}

// run is the main application function that gets all dependencies injected
func run(d deps) error {
	logger := d.Logger
	defer logger.Sync()
	defer closeResources(d)

	// Once mode finishes inside Start
	if err := d.Runner.Start(); err != nil {
		logger.Error("Runner failed", zap.Error(err))
		return err
	}
	if _, once := d.Runner.(*runner.OnceRunner); once {
		return nil
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := d.Runner.Stop(); err != nil {
		logger.Error("Failed to stop runner", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

func closeResources(d deps) {
	// Close any resources that need closing
	if closer, ok := d.Classifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.Logger.Error("Failed to close classifier", zap.Error(err))
		}
	}

	if stopper, ok := d.Dedup.(interface{ Stop() }); ok && d.Dedup != core.DedupStore(d.Store) {
		stopper.Stop()
	}
	d.Store.Stop()
}
