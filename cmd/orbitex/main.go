package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orbitex/exchange/internal/config"
	"github.com/orbitex/exchange/internal/currency"
	"github.com/orbitex/exchange/internal/database"
	"github.com/orbitex/exchange/internal/ledger"
	"github.com/orbitex/exchange/internal/market"
	"github.com/orbitex/exchange/internal/settlement"
	"github.com/orbitex/exchange/pkg/logger"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("exchange failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("database ready")

	currencies, err := buildCurrencies(cfg)
	if err != nil {
		return err
	}

	ledgerSvc := ledger.NewService(log, db, currencies)
	settler := settlement.NewSettler(log, db, ledgerSvc)
	registry := market.NewRegistry(log, db, ledgerSvc, currencies, settler)
	if err := registry.Warm(ctx); err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		publisher := settlement.NewPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic, settler.Events())
		defer publisher.Close()
		go publisher.Run(ctx)
		log.Info("trade event publisher started",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("exchange core ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	return nil
}

func buildCurrencies(cfg *config.Config) (*currency.Registry, error) {
	if len(cfg.Currencies) == 0 {
		return currency.DefaultRegistry(), nil
	}
	list := make([]currency.Currency, 0, len(cfg.Currencies))
	for _, c := range cfg.Currencies {
		fee := decimal.Zero
		if c.Fee != "" {
			var err error
			fee, err = decimal.NewFromString(c.Fee)
			if err != nil {
				return nil, fmt.Errorf("invalid fee for currency %s: %w", c.Name, err)
			}
		}
		list = append(list, currency.Currency{Name: c.Name, Decimals: c.Decimals, Fee: fee})
	}
	return currency.NewRegistry(list), nil
}
