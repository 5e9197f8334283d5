package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/batch"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/evm"
)

type config struct {
	Action     string `long:"action" description:"what to do" choice:"sign" choice:"send-raw" choice:"wallet" required:"true"`
	RPCURL     string `long:"rpc" env:"TXBATCH_RPC_URL" description:"EVM RPC endpoint"`
	PrivateKey string `long:"private-key" env:"TXBATCH_PRIVATE_KEY" description:"hex private key of the wallet" required:"true"`

	// sign
	Message string `long:"message" description:"message to sign"`

	// send-raw
	To       string `long:"to" description:"destination address"`
	Data     string `long:"data" description:"hex-encoded call data"`
	Value    string `long:"value" description:"value in wei"`
	GasLimit uint64 `long:"gas-limit" description:"gas limit override, 0 estimates"`
	GasPrice string `long:"gas-price" description:"gas price override in wei"`
	Retries  int    `long:"retries" description:"retry budget" default:"3"`

	// wallet
	Token   string `long:"token" description:"token address to include balance for"`
	Verbose bool   `long:"verbose" description:"verbose logging"`
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
		logger.Fatal("interact failed", zap.Error(err))
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
	wallet, err := evm.NewWallet(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}

	switch cfg.Action {
	case "sign":
		return signMessage(wallet, cfg.Message)
	case "send-raw":
		return sendRaw(ctx, wallet, cfg, logger)
	case "wallet":
		return walletInfo(ctx, wallet, cfg)
	default:
		return fmt.Errorf("unknown action %q", cfg.Action)
	}
}

func signMessage(wallet *evm.Wallet, message string) error {
	if message == "" {
		return errors.New("--message is required for sign")
	}
	signature, err := wallet.SignText([]byte(message))
	if err != nil {
		return err
	}
	fmt.Printf("Address:   %s\n", wallet.Address().Hex())
	fmt.Printf("Message:   %s\n", message)
	fmt.Printf("Signature: %s\n", signature)
	return nil
}

func sendRaw(ctx context.Context, wallet *evm.Wallet, cfg config, logger *zap.Logger) error {
	if cfg.RPCURL == "" {
		return errors.New("--rpc is required for send-raw")
	}
	if !common.IsHexAddress(cfg.To) {
		return fmt.Errorf("malformed destination address %q", cfg.To)
	}

	client, err := evm.Dial(ctx, cfg.RPCURL, nil)
	if err != nil {
		return fmt.Errorf("dial rpc endpoint: %w", err)
	}
	defer client.Close()

	to := common.HexToAddress(cfg.To)
	intent := batch.TxIntent{
		To:       &to,
		Value:    big.NewInt(0),
		GasLimit: cfg.GasLimit,
	}
	if cfg.Value != "" {
		if intent.Value, err = evm.ParseWei(cfg.Value); err != nil {
			return err
		}
	}
	if cfg.Data != "" {
		if intent.Data, err = hexutil.Decode(cfg.Data); err != nil {
			return fmt.Errorf("malformed call data: %w", err)
		}
	}
	if cfg.GasPrice != "" {
		if intent.GasPrice, err = evm.ParseWei(cfg.GasPrice); err != nil {
			return fmt.Errorf("malformed gas price: %w", err)
		}
	}

	submitter := batch.NewSubmitter(client, wallet, logger)
	result, err := submitter.Submit(ctx, intent, cfg.Retries)
	if err != nil {
		return err
	}

	fmt.Printf("Hash:  %s\n", result.Hash)
	fmt.Printf("Nonce: %d\n", result.Nonce)
	if result.Confirmed() {
		fmt.Printf("Block: %d (status %d, gas used %d)\n", *result.BlockNumber, *result.Status, result.GasUsed)
	} else {
		fmt.Println("Confirmation pending.")
	}
	return nil
}

func walletInfo(ctx context.Context, wallet *evm.Wallet, cfg config) error {
	if cfg.RPCURL == "" {
		return errors.New("--rpc is required for wallet")
	}
	client, err := evm.Dial(ctx, cfg.RPCURL, nil)
	if err != nil {
		return fmt.Errorf("dial rpc endpoint: %w", err)
	}
	defer client.Close()

	address := wallet.Address()
	balance, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return fmt.Errorf("query balance: %w", err)
	}
	fmt.Printf("Address: %s\n", address.Hex())
	fmt.Printf("Balance: %s ETH\n", evm.FormatEther(balance))

	if cfg.Token == "" {
		return nil
	}
	if !common.IsHexAddress(cfg.Token) {
		return fmt.Errorf("malformed token address %q", cfg.Token)
	}
	token := common.HexToAddress(cfg.Token)

	call := func(data []byte) ([]byte, error) {
		return client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	}

	data, err := evm.PackDecimals()
	if err != nil {
		return err
	}
	out, err := call(data)
	if err != nil {
		return fmt.Errorf("query token decimals: %w", err)
	}
	decimals, err := evm.UnpackDecimals(out)
	if err != nil {
		return err
	}

	data, err = evm.PackSymbol()
	if err != nil {
		return err
	}
	out, err = call(data)
	if err != nil {
		return fmt.Errorf("query token symbol: %w", err)
	}
	symbol, err := evm.UnpackSymbol(out)
	if err != nil {
		return err
	}

	data, err = evm.PackBalanceOf(address)
	if err != nil {
		return err
	}
	out, err = call(data)
	if err != nil {
		return fmt.Errorf("query token balance: %w", err)
	}
	tokenBalance, err := evm.UnpackBalance(out)
	if err != nil {
		return err
	}

	fmt.Printf("Token:   %s %s (%d decimals)\n", evm.FormatUnits(tokenBalance, int(decimals)), symbol, decimals)
	return nil
}
