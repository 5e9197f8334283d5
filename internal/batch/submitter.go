package batch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/clock"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

// TxIntent is a fully-specified transaction to submit. A nil To deploys a
// contract. Zero GasLimit requests estimation, nil GasPrice requests the
// network's suggested price, nil Nonce requests allocation.
type TxIntent struct {
	To       *common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Nonce    *uint64
}

// Submitter signs, broadcasts and confirms single transactions with a retry
// budget. Each retry re-runs the whole send with a fresh nonce, gas price and
// signature, since stale values are the dominant failure mode on public RPC
// endpoints.
type Submitter struct {
	network Network
	wallet  Wallet
	nonces  *NonceAllocator
	metrics SubmitterMetrics
	logger  *zap.Logger

	sleep           func(context.Context, time.Duration) error
	backoffStep     time.Duration
	backoffCap      time.Duration
	confirmAttempts int
	confirmInterval time.Duration

	chainMu sync.Mutex
	chainID *big.Int
}

// SubmitterOption customizes a Submitter.
type SubmitterOption func(*Submitter)

// WithNonceAllocator routes nonce assignment through a shared allocator
// instead of querying the pending count on every attempt.
func WithNonceAllocator(nonces *NonceAllocator) SubmitterOption {
	return func(s *Submitter) {
		s.nonces = nonces
	}
}

// WithSubmitterMetrics attaches submission metrics.
func WithSubmitterMetrics(metrics SubmitterMetrics) SubmitterOption {
	return func(s *Submitter) {
		s.metrics = metrics
	}
}

// WithBackoff overrides the retry backoff step and cap.
func WithBackoff(step, limit time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.backoffStep = step
		s.backoffCap = limit
	}
}

// WithConfirmation overrides how long a confirmation is awaited before the
// broadcast is reported without one.
func WithConfirmation(attempts int, interval time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.confirmAttempts = attempts
		s.confirmInterval = interval
	}
}

func withSleep(sleep func(context.Context, time.Duration) error) SubmitterOption {
	return func(s *Submitter) {
		s.sleep = sleep
	}
}

// NewSubmitter constructs a Submitter for one wallet.
func NewSubmitter(network Network, wallet Wallet, logger *zap.Logger, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		network:         network,
		wallet:          wallet,
		logger:          logger,
		sleep:           clock.SleepWithContext,
		backoffStep:     defaultBackoffStep,
		backoffCap:      defaultBackoffCap,
		confirmAttempts: defaultConfirmAttempts,
		confirmInterval: defaultConfirmInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit attempts to sign, broadcast and confirm the intent, retrying failed
// attempts with a growing backoff. After the budget is exhausted a
// SubmissionError carrying the attempt count and last error is returned.
// A missing confirmation is not a failure: the result then carries the hash
// with block number and status absent.
func (s *Submitter) Submit(ctx context.Context, intent TxIntent, retries int) (result model.SubmissionResult, err error) {
	if retries < 1 {
		retries = 1
	}
	started := time.Now()
	defer func() {
		s.observe(err, retries, started)
	}()

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		result, lastErr = s.attempt(ctx, intent)
		if lastErr == nil {
			return result, nil
		}
		s.logger.Warn("submission attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("retries", retries),
			zap.Error(lastErr),
		)
		if attempt == retries {
			break
		}
		if sleepErr := s.sleep(ctx, clock.Backoff(attempt, s.backoffStep, s.backoffCap)); sleepErr != nil {
			return model.SubmissionResult{}, &SubmissionError{Attempts: attempt, Err: sleepErr}
		}
	}
	return model.SubmissionResult{}, &SubmissionError{Attempts: retries, Err: lastErr}
}

func (s *Submitter) attempt(ctx context.Context, intent TxIntent) (model.SubmissionResult, error) {
	chainID, err := s.getChainID(ctx)
	if err != nil {
		return model.SubmissionResult{}, fmt.Errorf("query chain id: %w", err)
	}

	from := s.wallet.Address()
	nonce, fromAllocator, err := s.resolveNonce(ctx, intent, from)
	if err != nil {
		return model.SubmissionResult{}, err
	}

	result, err := s.send(ctx, intent, chainID, from, nonce)
	if err != nil {
		if fromAllocator {
			// The handed-out nonce never reached the mempool; drop the
			// lease so the next allocation re-reads the pending count
			// instead of skipping past it.
			s.nonces.Forget(from)
		}
		return model.SubmissionResult{}, err
	}
	return result, nil
}

func (s *Submitter) send(ctx context.Context, intent TxIntent, chainID *big.Int, from common.Address, nonce uint64) (model.SubmissionResult, error) {
	gasPrice := intent.GasPrice
	if gasPrice == nil {
		var err error
		if gasPrice, err = s.network.SuggestGasPrice(ctx); err != nil {
			return model.SubmissionResult{}, fmt.Errorf("suggest gas price: %w", err)
		}
	}

	gasLimit := intent.GasLimit
	if gasLimit == 0 {
		gasLimit = s.estimateGas(ctx, from, intent, gasPrice)
	}

	var tx *types.Transaction
	if intent.To == nil {
		tx = types.NewContractCreation(nonce, intent.Value, gasLimit, gasPrice, intent.Data)
	} else {
		tx = types.NewTransaction(nonce, *intent.To, intent.Value, gasLimit, gasPrice, intent.Data)
	}

	signed, err := s.wallet.SignTx(tx, chainID)
	if err != nil {
		return model.SubmissionResult{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.network.SendTransaction(ctx, signed); err != nil {
		return model.SubmissionResult{}, fmt.Errorf("broadcast transaction: %w", err)
	}

	result := model.SubmissionResult{
		Nonce: nonce,
		Hash:  signed.Hash().Hex(),
	}
	s.awaitConfirmation(ctx, signed.Hash(), &result)
	return result, nil
}

func (s *Submitter) resolveNonce(ctx context.Context, intent TxIntent, from common.Address) (uint64, bool, error) {
	if intent.Nonce != nil {
		return *intent.Nonce, false, nil
	}
	if s.nonces != nil {
		nonce, err := s.nonces.Allocate(ctx, from)
		if err != nil {
			return 0, false, err
		}
		return nonce, true, nil
	}
	nonce, err := s.network.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, false, fmt.Errorf("query pending nonce: %w", err)
	}
	return nonce, false, nil
}

// estimateGas asks the network for a gas limit and falls back to a fixed
// default when estimation fails. Estimation errors are non-fatal for gas only.
func (s *Submitter) estimateGas(ctx context.Context, from common.Address, intent TxIntent, gasPrice *big.Int) uint64 {
	estimated, err := s.network.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       intent.To,
		Value:    intent.Value,
		GasPrice: gasPrice,
		Data:     intent.Data,
	})
	if err == nil {
		return estimated
	}

	fallback := uint64(defaultGasLimitCall)
	if len(intent.Data) == 0 {
		fallback = defaultGasLimitTransfer
	}
	s.logger.Debug("gas estimation failed, using fallback",
		zap.Uint64("fallback", fallback),
		zap.Error(err),
	)
	return fallback
}

// awaitConfirmation polls for a receipt until the attempt budget runs out.
// Timing out is tolerated: the transaction may still confirm later.
func (s *Submitter) awaitConfirmation(ctx context.Context, hash common.Hash, result *model.SubmissionResult) {
	for i := 0; i < s.confirmAttempts; i++ {
		receipt, err := s.network.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.BlockNumber != nil {
				blockNumber := receipt.BlockNumber.Uint64()
				result.BlockNumber = &blockNumber
			}
			status := receipt.Status
			result.Status = &status
			result.GasUsed = receipt.GasUsed
			return
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.logger.Debug("receipt lookup failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}
		if sleepErr := s.sleep(ctx, s.confirmInterval); sleepErr != nil {
			return
		}
	}
	s.logger.Info("confirmation wait timed out, proceeding without receipt",
		zap.String("hash", hash.Hex()),
	)
}

// getChainID caches the chain id after the first successful query. Failures
// are not cached so a transient RPC error does not poison later attempts.
func (s *Submitter) getChainID(ctx context.Context) (*big.Int, error) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.network.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.chainID = id
	return id, nil
}

func (s *Submitter) observe(err error, attempts int, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveSubmission(err, attempts, started)
}
