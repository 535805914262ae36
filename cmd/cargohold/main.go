// Package main is the entry point for the cargohold CLI, a thin driver
// around the attachment storage adapter: upload, delete, resolve URLs,
// download, or serve redirects for objects in the configured container.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cargohold/cargohold"
	"github.com/cargohold/cargohold/credentials"
	"github.com/cargohold/cargohold/internal/config"
	"github.com/cargohold/cargohold/internal/logging"
	"github.com/cargohold/cargohold/internal/metrics"
)

// keyAttachment satisfies cargohold.Attachment for CLI use: styles are
// the literal storage keys.
type keyAttachment struct{}

func (keyAttachment) Path(style string) string { return style }

func usage() {
	fmt.Fprintf(os.Stderr, `usage: cargohold [flags] <command> [args]

commands:
  put <key> <file>     upload a file at the given storage key
  rm <key>...          delete the given storage keys
  url [-expiring] [-expiry d] <key>
                       print the public (or expiring) URL for a key
  get <key> <dest>     download a key to a local file
  exists <key>         check whether a key is stored remotely
  serve                run the redirect and metrics server
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	store := cargohold.New(keyAttachment{}, storageOptions(cfg))
	ctx := context.Background()

	args := flag.Args()[1:]
	switch cmd := flag.Arg(0); cmd {
	case "put":
		err = runPut(ctx, store, args)
	case "rm":
		err = runRm(ctx, store, args)
	case "url":
		err = runURL(ctx, store, args)
	case "get":
		err = runGet(ctx, store, args)
	case "exists":
		err = runExists(ctx, store, args)
	case "serve":
		err = runServe(cfg, store)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargohold %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

// storageOptions maps the CLI config onto adapter options.
func storageOptions(cfg *config.Config) cargohold.Options {
	opts := cargohold.Options{
		Credentials:       credentials.Source{Path: cfg.Storage.CredentialsFile},
		Environment:       cfg.Storage.Environment,
		Directory:         cargohold.String(cfg.Storage.Directory),
		ExtraUploadFields: cargohold.Fields(cfg.Storage.ExtraUploadFields),
	}
	if cfg.Storage.Host != "" {
		opts.Host = cargohold.String(cfg.Storage.Host)
	}
	if cfg.Storage.Public != nil {
		opts.Public = cargohold.Public(*cfg.Storage.Public)
	}
	return opts
}

func runPut(ctx context.Context, store *cargohold.Storage, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("put needs <key> <file>")
	}
	key, path := args[0], args[1]

	file, err := cargohold.OpenUpload(path)
	if err != nil {
		return err
	}
	store.EnqueueWrite(key, file)
	if err := store.FlushWrites(ctx); err != nil {
		return err
	}
	slog.Info("Uploaded", "key", key, "file", path)
	return nil
}

func runRm(ctx context.Context, store *cargohold.Storage, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("rm needs at least one <key>")
	}
	for _, key := range args {
		store.EnqueueDelete(key)
	}
	if err := store.FlushDeletes(ctx); err != nil {
		return err
	}
	slog.Info("Deleted", "keys", len(args))
	return nil
}

func runURL(ctx context.Context, store *cargohold.Storage, args []string) error {
	fs := flag.NewFlagSet("url", flag.ExitOnError)
	expiring := fs.Bool("expiring", false, "print a time-limited URL")
	expiry := fs.Duration("expiry", 0, "expiring URL lifetime (default 1h)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("url needs exactly one <key>")
	}

	var (
		u   string
		err error
	)
	if *expiring {
		u, err = store.ExpiringURL(ctx, *expiry, fs.Arg(0))
	} else {
		u, err = store.PublicURL(ctx, fs.Arg(0))
	}
	if err != nil {
		return err
	}
	fmt.Println(u)
	return nil
}

func runGet(ctx context.Context, store *cargohold.Storage, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("get needs <key> <dest>")
	}
	if !store.CopyToLocal(ctx, args[0], args[1]) {
		return fmt.Errorf("download of %q failed", args[0])
	}
	slog.Info("Downloaded", "key", args[0], "dest", args[1])
	return nil
}

func runExists(ctx context.Context, store *cargohold.Storage, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exists needs exactly one <key>")
	}
	ok, err := store.Exists(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(ok)
	if !ok {
		os.Exit(1)
	}
	return nil
}

// runServe runs a small HTTP server that redirects object paths to their
// public URLs and exposes Prometheus metrics.
func runServe(cfg *config.Config, store *cargohold.Storage) error {
	metrics.Register()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/files/*", func(w http.ResponseWriter, req *http.Request) {
		key := chi.URLParam(req, "*")
		u, err := store.PublicURL(req.Context(), key)
		if err != nil {
			slog.Error("URL composition failed", "key", key, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, req, u, http.StatusFound)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Serve.Host, cfg.Serve.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("cargohold listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		slog.Info("Server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}
