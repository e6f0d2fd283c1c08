package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/nativebind/nativebind/internal/config"
	"github.com/nativebind/nativebind/internal/wasmffi"
	"github.com/nativebind/nativebind/pkg/bind"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	manifestPath := flag.String("manifest", "", "Interface manifest to load (in addition to configured ones)")
	flag.Parse()

	// Initialize logger
	logger := zap.L()
	if *logLevel == "debug" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}

	defer logger.Sync()

	logger.Info("Starting nbhost",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Load configuration
	cfg, err := config.LoadHostConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	manifests := cfg.Manifests
	if *manifestPath != "" {
		manifests = append(manifests, *manifestPath)
	}
	if len(manifests) == 0 {
		logger.Fatal("No interface manifests given (use -manifest or the config file)")
	}

	// An interrupt cancels the context, aborting any in-flight module
	// instantiation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := wasmffi.NewRegistry(logger)
	defer registry.CloseAll(ctx)

	for _, path := range manifests {
		rt, err := registry.Load(ctx, &wasmffi.Config{
			ManifestPath: path,
			MemoryPages:  cfg.Wasm.MemoryPages,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to load library", zap.String("manifest", path), zap.Error(err))
		}
		inspect(rt, logger)
	}

	logger.Info("Shutdown complete")
}

// inspect wraps a library's whole namespace and reports what came out
// bindable.
func inspect(rt *wasmffi.Runtime, logger *zap.Logger) {
	bc := bind.NewContext(rt, logger)
	wrapped := bc.WrapAll(rt)

	fmt.Printf("%s: %d symbols bound\n", rt.Library(), len(wrapped))
	for name, entry := range wrapped {
		switch v := entry.(type) {
		case *bind.Capability:
			fmt.Printf("  func    %s\n", name)
		case *bind.Factory:
			fmt.Printf("  type    %s\n", name)
		case *bind.Proxy:
			fmt.Printf("  value   %s (%s)\n", name, v.Descriptor().CanonicalName)
		default:
			fmt.Printf("  const   %s = %v\n", name, v)
		}
	}
}
