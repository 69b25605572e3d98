package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hivecore/hivecore/internal/config"
	"github.com/hivecore/hivecore/internal/coordinator"
)

// Exit codes, per the external-interface contract: 0 normal, 2
// configuration error, 64 usage error, 70 internal error, 130
// interrupted.
const (
	exitOK          = 0
	exitConfigError = 2
	exitUsageError  = 64
	exitInternal    = 70
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/hivecore.yaml", "Configuration file")
	dataDir := flag.String("data", "data", "Directory for the lock file and SQLite state database")
	dbName := flag.String("db", "hivecore.db", "SQLite database filename within -data (empty disables persistence)")
	addr := flag.String("addr", "", "Override host:port from config (e.g. :8080)")
	serverID := flag.String("server-id", "", "Server identity reported in the Hello handshake (default: random uuid)")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unrecognized arguments: %v\n", flag.Args())
		return exitUsageError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitConfigError
	}

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		return exitConfigError
	}

	lock := config.NewInstanceLock(filepath.Join(*dataDir, "hivecore.lock"))
	if err := lock.Acquire(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitConfigError
	}
	defer lock.Release()

	id := *serverID
	if id == "" {
		id = uuid.NewString()
	}

	dbPath := ""
	if *dbName != "" {
		dbPath = filepath.Join(*dataDir, *dbName)
	}

	c, err := coordinator.New(cfg, dbPath, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to wire hive: %v\n", err)
		return exitInternal
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start hive: %v\n", err)
		return exitInternal
	}

	bindAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if *addr != "" {
		bindAddr = *addr
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- c.HTTPServer().Start(bindAddr)
	}()

	fmt.Printf("hivecore %s listening on %s\n", id, bindAddr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	interrupted := false
	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			cancel()
			_ = c.Shutdown(context.Background())
			return exitInternal
		}
	case <-shutdown:
		fmt.Println("shutting down (signal received)...")
		interrupted = true
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := c.HTTPServer().Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "http shutdown error: %v\n", err)
	}
	if err := c.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "hive shutdown error: %v\n", err)
	}

	if interrupted {
		return exitInterrupted
	}
	return exitOK
}
