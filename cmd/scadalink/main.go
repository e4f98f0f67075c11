// scadalink collects MC 3E ASCII PLC tags on a schedule, buffers and
// batch-writes them to an Oracle historian, broadcasts live samples over
// WebSocket, and optionally republishes to MQTT/Kafka/Valkey. It runs
// headless; an operator attaches over SSH for live status and control.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scadalink/engine"
	"scadalink/internal/config"
	"scadalink/internal/logging"
	"scadalink/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	showVersion = flag.Bool("version", false, "Show version and exit")
	storePath   = flag.String("store", "", "Path to the configuration store YAML snapshot (overrides CONFIG_STORE_PATH)")
	logDebug    = flag.String("log-debug", "", "Enable debug logging (comma-separated subsystem filter, or \"all\")")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("scadalink %s\n", Version)
		os.Exit(0)
	}

	cfg := config.Load()

	if *logDebug != "" {
		debugLogPath := cfg.BackendDebugLog
		if debugLogPath == "" {
			debugLogPath = "debug.log"
		}
		debugLogger, err := logging.NewDebugLogger(debugLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open debug log: %v\n", err)
		} else {
			filter := *logDebug
			if filter == "all" || filter == "true" || filter == "1" {
				filter = ""
			}
			debugLogger.SetFilter(filter)
			logging.SetGlobal(debugLogger)
		}
	}

	path := cfg.ConfigStorePath
	if *storePath != "" {
		path = *storePath
	}
	st, err := store.LoadYAMLStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration store %s: %v\n", path, err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg, st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error constructing engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
		os.Exit(1)
	}

	if cfg.Console.SSHAddr != "" {
		fmt.Printf("Operator console on %s\n", cfg.Console.SSHAddr)
	} else {
		fmt.Fprintf(os.Stderr, "Warning: running with no operator console. Set CONSOLE_SSH_ADDR for remote access.\n")
	}
	fmt.Println("Running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Printf("\nReceived %v, shutting down...\n", sig)

	shutdownDone := make(chan struct{})
	go func() {
		eng.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(15 * time.Second):
		fmt.Fprintf(os.Stderr, "Shutdown timed out, exiting anyway.\n")
	}
}
