package batch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/clock"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/evm"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/txlog"
)

// Orchestrator drives one configured batch to completion: it plans the work,
// submits items strictly one at a time with the configured delay between
// them, aggregates results and persists a per-run transaction log.
//
// Token-transfer runs are all-or-nothing: retry exhaustion on any item aborts
// the run. Raw and eth-transfer runs are best effort per item.
type Orchestrator struct {
	network   Network
	wallet    Wallet
	submitter TxSubmitter
	nonces    *NonceAllocator
	observer  Observer
	metrics   OrchestratorMetrics
	logger    *zap.Logger

	sleep        func(context.Context, time.Duration) error
	now          func() time.Time
	newLogWriter func(dir string, started time.Time) (LogWriter, error)
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithObserver attaches a progress observer.
func WithObserver(observer Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithOrchestratorMetrics attaches run metrics.
func WithOrchestratorMetrics(metrics OrchestratorMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithSharedNonces routes eth-transfer and raw submissions through a shared
// allocator so concurrent runs for the same wallet never reuse a nonce.
func WithSharedNonces(nonces *NonceAllocator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.nonces = nonces
	}
}

// WithSubmitter replaces the default submitter.
func WithSubmitter(submitter TxSubmitter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.submitter = submitter
	}
}

func withOrchestratorSleep(sleep func(context.Context, time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

func withLogWriterFactory(factory func(string, time.Time) (LogWriter, error)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newLogWriter = factory
	}
}

// NewOrchestrator constructs an Orchestrator for one wallet and network.
func NewOrchestrator(network Network, wallet Wallet, logger *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		network: network,
		wallet:  wallet,
		logger:  logger,
		sleep:   clock.SleepWithContext,
		now:     time.Now,
		newLogWriter: func(dir string, started time.Time) (LogWriter, error) {
			return txlog.NewWriter(dir, started, logger)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.submitter == nil {
		submitterOpts := []SubmitterOption{}
		if o.nonces != nil {
			submitterOpts = append(submitterOpts, WithNonceAllocator(o.nonces))
		}
		o.submitter = NewSubmitter(network, wallet, logger, submitterOpts...)
	}
	return o
}

// Plan resolves the configured batch into the ordered list of items a run
// would submit, without submitting anything. Token-transfer plans include the
// balance pre-check.
func (o *Orchestrator) Plan(ctx context.Context, cfg model.BatchConfig) ([]model.PlannedItem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &SetupError{Err: err}
	}
	if cfg.Mode == model.ModeTokenTransfer {
		return o.planTokenRun(ctx, cfg)
	}
	return expandTransactions(cfg), nil
}

// Run drives the batch to a terminal state and returns its summary. Setup and
// planning problems surface as SetupError or PlanningError before any
// submission happens.
func (o *Orchestrator) Run(ctx context.Context, cfg model.BatchConfig) (summary *model.BatchRunSummary, err error) {
	started := o.now()
	defer func() {
		o.observeRun(cfg.Mode, err, summary, started)
	}()

	items, err := o.Plan(ctx, cfg)
	if err != nil {
		return nil, err
	}

	o.logger.Info("batch run starting",
		zap.String("mode", string(cfg.Mode)),
		zap.Int("items", len(items)),
		zap.Stringer("wallet", o.wallet.Address()),
	)
	if o.observer != nil {
		o.observer.WalletResolved(o.wallet.Address())
	}
	if o.nonces != nil {
		defer o.nonces.Release(o.wallet.Address())
	}

	var logWriter LogWriter
	if cfg.LogDir != "" {
		if logWriter, err = o.newLogWriter(cfg.LogDir, started); err != nil {
			return nil, &SetupError{Err: fmt.Errorf("open transaction log: %w", err)}
		}
		logWriter.Start(ctx)
		defer func() {
			if closeErr := logWriter.Stop(); closeErr != nil {
				o.logger.Error("transaction log close failed", zap.Error(closeErr))
			}
		}()
	}

	var (
		results  []model.SubmissionResult
		failures []model.FailureRecord
	)
	for i, item := range items {
		result, itemErr := o.submitItem(ctx, cfg, item)
		if itemErr != nil {
			if cfg.Mode == model.ModeTokenTransfer {
				// A single homogeneous transfer stream is all-or-nothing.
				return nil, itemErr
			}
			failure := model.FailureRecord{
				Index:  item.Index,
				Target: item.Recipient,
				Error:  itemErr.Error(),
			}
			failures = append(failures, failure)
			o.settle(nil, &failure)
		} else {
			results = append(results, result)
			o.settle(&result, nil)
			if logWriter != nil {
				if appendErr := logWriter.Append(ctx, result); appendErr != nil {
					o.logger.Error("transaction log append failed", zap.Error(appendErr))
				}
			}
		}

		if i < len(items)-1 && cfg.Delay() > 0 {
			if sleepErr := o.sleep(ctx, cfg.Delay()); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	summary = &model.BatchRunSummary{
		Total:      len(items),
		Successful: len(results),
		Failed:     len(failures),
		Duration:   o.now().Sub(started),
		Results:    results,
		Failures:   failures,
	}
	o.logger.Info("batch run completed",
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) submitItem(ctx context.Context, cfg model.BatchConfig, item model.PlannedItem) (model.SubmissionResult, error) {
	intent, err := o.buildIntent(cfg, item)
	if err != nil {
		return model.SubmissionResult{}, err
	}

	result, err := o.submitter.Submit(ctx, intent, cfg.MaxRetries)
	if err != nil {
		return model.SubmissionResult{}, err
	}

	result.Index = item.Index
	result.Amount = item.Amount
	result.BaseAmount = item.BaseAmount
	result.ItemIndex = item.ItemIndex
	result.Repeat = item.Repeat
	return result, nil
}

func (o *Orchestrator) buildIntent(cfg model.BatchConfig, item model.PlannedItem) (TxIntent, error) {
	switch cfg.Mode {
	case model.ModeTokenTransfer:
		token := common.HexToAddress(cfg.Token)
		baseAmount, ok := new(big.Int).SetString(item.BaseAmount, 10)
		if !ok {
			return TxIntent{}, fmt.Errorf("malformed base amount %q", item.BaseAmount)
		}
		data, err := evm.PackTransfer(common.HexToAddress(item.Recipient), baseAmount)
		if err != nil {
			return TxIntent{}, err
		}
		var gasPrice *big.Int
		if cfg.GasPrice != "" {
			parsed, err := evm.ParseWei(cfg.GasPrice)
			if err != nil {
				return TxIntent{}, fmt.Errorf("malformed gas price: %w", err)
			}
			gasPrice = parsed
		}
		return TxIntent{
			To:       &token,
			Data:     data,
			Value:    big.NewInt(0),
			GasLimit: item.GasLimit,
			GasPrice: gasPrice,
		}, nil

	case model.ModeRaw, model.ModeEthTransfer:
		if !common.IsHexAddress(item.Recipient) {
			return TxIntent{}, fmt.Errorf("malformed recipient address %q", item.Recipient)
		}
		to := common.HexToAddress(item.Recipient)

		value := big.NewInt(0)
		if item.Value != "" {
			var err error
			// Eth-transfer amounts read as decimal ETH, raw values as wei.
			if cfg.Mode == model.ModeEthTransfer {
				value, err = evm.ParseEther(item.Value)
			} else {
				value, err = evm.ParseWei(item.Value)
			}
			if err != nil {
				return TxIntent{}, err
			}
		}

		var data []byte
		if item.Data != "" {
			decoded, err := hexutil.Decode(item.Data)
			if err != nil {
				return TxIntent{}, fmt.Errorf("malformed call data: %w", err)
			}
			data = decoded
		}

		var gasPrice *big.Int
		if item.GasPrice != "" {
			parsed, err := evm.ParseWei(item.GasPrice)
			if err != nil {
				return TxIntent{}, fmt.Errorf("malformed gas price: %w", err)
			}
			gasPrice = parsed
		}

		return TxIntent{
			To:       &to,
			Data:     data,
			Value:    value,
			GasLimit: item.GasLimit,
			GasPrice: gasPrice,
		}, nil

	default:
		return TxIntent{}, fmt.Errorf("unknown batch mode %q", cfg.Mode)
	}
}

// planTokenRun plans the amount sequence, converts it to base units and
// verifies the total against the wallet's token balance before anything is
// submitted.
func (o *Orchestrator) planTokenRun(ctx context.Context, cfg model.BatchConfig) ([]model.PlannedItem, error) {
	if !common.IsHexAddress(cfg.Token) {
		return nil, &SetupError{Err: fmt.Errorf("malformed token address %q", cfg.Token)}
	}
	if !common.IsHexAddress(cfg.Recipient) {
		return nil, &SetupError{Err: fmt.Errorf("malformed recipient address %q", cfg.Recipient)}
	}
	token := common.HexToAddress(cfg.Token)

	decimals, err := o.tokenDecimals(ctx, token)
	if err != nil {
		return nil, &SetupError{Err: err}
	}

	precision := cfg.Precision
	if precision <= 0 {
		precision = defaultPrecision
	}
	planner, err := NewAmountPlanner(cfg.MinAmount, cfg.MaxAmount, precision, cfg.Count)
	if err != nil {
		return nil, &SetupError{Err: err}
	}

	items := make([]model.PlannedItem, 0, cfg.Count)
	total := new(big.Int)
	for {
		display, ok := planner.Next()
		if !ok {
			break
		}
		base, err := evm.ParseUnits(display, int(decimals))
		if err != nil {
			return nil, &SetupError{Err: err}
		}
		total.Add(total, base)
		items = append(items, model.PlannedItem{
			Index:      len(items),
			Recipient:  cfg.Recipient,
			Amount:     display,
			BaseAmount: base.String(),
			GasLimit:   cfg.GasLimit,
		})
	}

	balance, err := o.tokenBalance(ctx, token, o.wallet.Address())
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	if total.Cmp(balance) > 0 {
		return nil, &PlanningError{Need: total, Have: balance}
	}

	return items, nil
}

func (o *Orchestrator) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := evm.PackDecimals()
	if err != nil {
		return 0, err
	}
	out, err := o.network.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("query token decimals: %w", err)
	}
	return evm.UnpackDecimals(out)
}

func (o *Orchestrator) tokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := evm.PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := o.network.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("query token balance: %w", err)
	}
	return evm.UnpackBalance(out)
}

// expandTransactions flattens the caller-supplied list into planned items,
// repeating each transaction per its count.
func expandTransactions(cfg model.BatchConfig) []model.PlannedItem {
	var items []model.PlannedItem
	for txIndex, tx := range cfg.Transactions {
		count := tx.Count
		if count < 1 {
			count = 1
		}
		gasLimit := tx.GasLimit
		if gasLimit == 0 {
			gasLimit = cfg.GasLimit
		}
		gasPrice := tx.GasPrice
		if gasPrice == "" {
			gasPrice = cfg.GasPrice
		}
		for repeat := 0; repeat < count; repeat++ {
			items = append(items, model.PlannedItem{
				Index:     len(items),
				Recipient: tx.To,
				ItemIndex: txIndex,
				Repeat:    repeat,
				Data:      tx.Data,
				Value:     tx.Value,
				GasLimit:  gasLimit,
				GasPrice:  gasPrice,
			})
		}
	}
	return items
}

func (o *Orchestrator) settle(result *model.SubmissionResult, failure *model.FailureRecord) {
	if o.observer == nil {
		return
	}
	o.observer.ItemSettled(result, failure)
}

func (o *Orchestrator) observeRun(mode model.Mode, err error, summary *model.BatchRunSummary, started time.Time) {
	if o.metrics == nil {
		return
	}
	items := 0
	if summary != nil {
		items = summary.Total
	}
	o.metrics.ObserveRun(mode, err, items, started)
}
