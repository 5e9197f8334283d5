package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/batch"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/evm"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/jobs"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/metrics"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/transport"
)

type config struct {
	Addr        string `long:"addr" env:"TXBATCH_API_ADDR" description:"address for the job API server" default:":8080"`
	MetricsAddr string `long:"metrics-addr" env:"TXBATCH_METRICS_ADDR" description:"address for the metrics server" default:":2112"`
	RPCURL      string `long:"rpc" env:"TXBATCH_RPC_URL" description:"EVM RPC endpoint" required:"true"`
	PrivateKey  string `long:"private-key" env:"TXBATCH_PRIVATE_KEY" description:"hex private key of the sending wallet" required:"true"`
	APIKey      string `long:"api-key" env:"TXBATCH_API_KEY" description:"API key required in X-API-Key; empty disables auth"`
	LogDir      string `long:"log-dir" env:"TXBATCH_LOG_DIR" description:"directory for per-run transaction logs" default:"txlogs"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	_ = godotenv.Load()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("batch api server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	client, err := evm.Dial(ctx, cfg.RPCURL, metrics.NewRPCClient())
	if err != nil {
		return fmt.Errorf("dial rpc endpoint: %w", err)
	}
	defer client.Close()

	wallet, err := evm.NewWallet(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	logger.Info("wallet loaded", zap.Stringer("address", wallet.Address()))

	nonces := batch.NewNonceAllocator(client)
	submitterMetrics := metrics.NewSubmitter()
	runMetrics := metrics.NewOrchestrator()

	runBatch := func(ctx context.Context, batchCfg model.BatchConfig, observer jobs.Observer) (*model.BatchRunSummary, error) {
		submitter := batch.NewSubmitter(client, wallet, logger,
			batch.WithNonceAllocator(nonces),
			batch.WithSubmitterMetrics(submitterMetrics),
		)
		orchestrator := batch.NewOrchestrator(client, wallet, logger,
			batch.WithSubmitter(submitter),
			batch.WithSharedNonces(nonces),
			batch.WithObserver(observer),
			batch.WithOrchestratorMetrics(runMetrics),
		)
		return orchestrator.Run(ctx, batchCfg)
	}

	registry := jobs.NewRegistry(runBatch, logger, jobs.WithJobMetrics(metrics.NewJobs()))
	defer registry.Close()

	handler := transport.NewHandler(registry, wallet, client, logger,
		transport.WithLogDir(cfg.LogDir),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cors.Default().Handler(handler.Router(cfg.APIKey)),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down the http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", zap.Error(err))
		}
	}()

	logger.Info("starting batch api server", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
