// Command normals-server serves normal estimation over HTTP and keeps a
// SQLite history of runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/pointnormals/internal/api"
	"github.com/banshee-data/pointnormals/internal/config"
	"github.com/banshee-data/pointnormals/internal/normals"
	"github.com/banshee-data/pointnormals/internal/store/sqlite"
	"github.com/banshee-data/pointnormals/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "Listen address")
	dbPath       = flag.String("db", "normals.db", "SQLite run history; empty disables recording")
	configPath   = flag.String("config", "", "Tuning JSON file (defaults built in)")
	maxBodyMB    = flag.Int64("max-body-mb", api.DefaultMaxBodyBytes>>20, "Largest accepted upload in MiB")
	printVersion = flag.Bool("version", false, "Print version and exit")
)

// newHandler builds the estimator, opens the store and assembles the HTTP
// handler. The returned close function releases the store.
func newHandler(cfgPath, db string, maxBody int64) (http.Handler, func() error, error) {
	tc := config.DefaultTuningConfig()
	if cfgPath != "" {
		loaded, err := config.LoadTuningConfig(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		tc = loaded
	}
	cfg, err := normals.ConfigFromTuning(tc)
	if err != nil {
		return nil, nil, err
	}
	est, err := normals.NewEstimator(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []api.Option{
		api.WithMaxBodyBytes(maxBody),
		api.WithHistogramBins(tc.GetHistogramBins()),
	}
	if db == "" {
		h, err := api.Handler(api.NewServer(est, nil, opts...), nil)
		return h, func() error { return nil }, err
	}

	store, err := sqlite.Open(db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run store: %w", err)
	}
	log.Printf("recording runs in %s", store.Path())
	h, err := api.Handler(api.NewServer(est, sqlite.NewRunStore(store.DB), opts...), store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return h, store.Close, nil
}

func main() {
	flag.Parse()
	if *printVersion {
		fmt.Println(version.String("normals-server"))
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	h, closeStore, err := newHandler(*configPath, *dbPath, *maxBodyMB<<20)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("failed to close run store: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              *listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", version.String("normals-server"), *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			log.Printf("failed to start server: %v", err)
			stop()
			_ = closeStore()
			os.Exit(1)
		}
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
