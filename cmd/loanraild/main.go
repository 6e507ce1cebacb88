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

	"golang.org/x/time/rate"

	"loanrail/admin"
	"loanrail/config"
	"loanrail/identity"
	"loanrail/observability/logging"
	"loanrail/provider"
	"loanrail/quote"
	"loanrail/settle"
	"loanrail/storage"
	"loanrail/wallet"
	"loanrail/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "loanraild.yaml", "path to loanraild configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("loanraild", cfg.Logging.Environment, logging.Options{
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	token, err := cfg.ProviderToken()
	if err != nil {
		return fmt.Errorf("resolve provider token: %w", err)
	}
	tokens := &identity.Caching{Source: identity.Retrying{Source: identity.Static(token)}}

	client := provider.NewClient(cfg.Provider.BaseURL, tokens,
		provider.WithTimeout(cfg.Provider.Timeout.Duration),
		provider.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Provider.RatePerSec), cfg.Provider.RateBurst)),
	)

	catalogCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	catalog, err := client.Currencies(catalogCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch currency catalog: %w", err)
	}
	logger.Info("currency catalog loaded", "entries", len(catalog))

	journal, err := storage.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	engine := quote.NewEngine(client, catalog,
		quote.WithMaxAttempts(cfg.Quote.MaxAttempts),
		quote.WithCoolDown(cfg.Quote.CoolDown.Duration),
	)
	streamer := quote.NewStreamer(engine, quote.WithDebounce(cfg.Quote.Debounce.Duration))

	// The treasury signer is injected by the embedding deployment; until then
	// every transfer attempt fails loudly instead of moving funds.
	signer := wallet.FuncSigner(func(context.Context, wallet.TransferRequest) (string, error) {
		return "", fmt.Errorf("treasury signer not configured")
	})

	orchestrator := settle.New(client, signer, catalog,
		settle.WithJournal(journal),
		settle.WithLogger(logger),
	)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      admin.NewRouter(orchestrator, cfg.Admin.Token),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchers := watch.NewRegistry(stopCtx, client, cfg.Watcher.Interval.Duration)
	defer watchers.StopAll("daemon shutting down")

	go streamer.Run(stopCtx)

	errs := make(chan error, 1)
	go func() {
		logger.Info("loanraild listening", "addr", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
