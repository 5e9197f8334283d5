package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/batch"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/evm"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

type config struct {
	RPCURL     string  `long:"rpc" env:"TXBATCH_RPC_URL" description:"EVM RPC endpoint" required:"true"`
	Token      string  `long:"token" env:"TXBATCH_TOKEN" description:"ERC20 token contract address" required:"true"`
	To         string  `long:"to" env:"TXBATCH_RECIPIENT" description:"recipient address" required:"true"`
	Count      int     `long:"count" description:"number of transfers to send" default:"20"`
	Min        string  `long:"min" description:"minimum transfer amount" default:"0.01"`
	Max        string  `long:"max" description:"maximum transfer amount" default:"0.5"`
	Delay      float64 `long:"delay" description:"seconds to pause between transfers" default:"1.0"`
	Retries    int     `long:"retries" description:"retry budget per transfer" default:"3"`
	GasLimit   uint64  `long:"gas-limit" description:"gas limit override, 0 estimates"`
	GasPrice   string  `long:"gas-price" description:"gas price override in wei, empty uses the suggested price"`
	LogDir     string  `long:"log-dir" env:"TXBATCH_LOG_DIR" description:"directory for per-run transaction logs" default:"txlogs"`
	PrivateKey string  `long:"private-key" env:"TXBATCH_PRIVATE_KEY" description:"hex private key of the sending wallet" required:"true"`
	DryRun     bool    `long:"dry-run" description:"plan the batch and print it without sending"`
	Yes        bool    `long:"yes" description:"skip the confirmation prompt"`
	Verbose    bool    `long:"verbose" description:"verbose logging"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("batch run failed", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	if !verbose {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}
	return logger, nil
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	client, err := evm.Dial(ctx, cfg.RPCURL, nil)
	if err != nil {
		return fmt.Errorf("dial rpc endpoint: %w", err)
	}
	defer client.Close()

	wallet, err := evm.NewWallet(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}

	batchCfg := model.BatchConfig{
		Mode:         model.ModeTokenTransfer,
		Token:        cfg.Token,
		Recipient:    cfg.To,
		Count:        cfg.Count,
		MinAmount:    cfg.Min,
		MaxAmount:    cfg.Max,
		DelaySeconds: cfg.Delay,
		MaxRetries:   cfg.Retries,
		GasLimit:     cfg.GasLimit,
		GasPrice:     cfg.GasPrice,
		LogDir:       cfg.LogDir,
		DryRun:       cfg.DryRun,
	}

	orchestrator := batch.NewOrchestrator(client, wallet, logger,
		batch.WithSharedNonces(batch.NewNonceAllocator(client)),
	)

	if cfg.DryRun {
		items, err := orchestrator.Plan(ctx, batchCfg)
		if err != nil {
			return err
		}
		printPlan(items)
		return nil
	}

	fmt.Printf("Sending %d transfers of %s..%s tokens (%s) from %s to %s\n",
		cfg.Count, cfg.Min, cfg.Max, cfg.Token, wallet.Address().Hex(), cfg.To)
	if !cfg.Yes && !confirm() {
		fmt.Println("Aborted.")
		return nil
	}

	summary, err := orchestrator.Run(ctx, batchCfg)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

func confirm() bool {
	fmt.Print("Proceed? [y/N]: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printPlan(items []model.PlannedItem) {
	fmt.Printf("Planned %d transfers (dry run, nothing sent):\n", len(items))
	for _, item := range items {
		fmt.Printf("  %3d  %s -> %s  (%s base units)\n", item.Index, item.Amount, item.Recipient, item.BaseAmount)
	}
}

func printSummary(summary *model.BatchRunSummary) {
	fmt.Printf("Done: %d/%d successful, %d failed, took %s\n",
		summary.Successful, summary.Total, summary.Failed, summary.Duration.Round(time.Millisecond))
	for _, result := range summary.Results {
		status := "pending"
		if result.Confirmed() {
			status = fmt.Sprintf("block %d", *result.BlockNumber)
		}
		fmt.Printf("  %3d  %s  nonce %d  %s  (%s)\n", result.Index, result.Amount, result.Nonce, result.Hash, status)
	}
	for _, failure := range summary.Failures {
		fmt.Printf("  %3d  FAILED  %s\n", failure.Index, failure.Error)
	}
}
