// Package batch implements planning, nonce allocation, submission and
// orchestration of transaction batches against an EVM network.
package batch

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Network is the subset of the RPC client the batch engine depends on.
	Network interface {
		ChainID(ctx context.Context) (*big.Int, error)
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
		SendTransaction(ctx context.Context, tx *types.Transaction) error
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
		CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	}

	// Wallet signs transactions for a single account.
	Wallet interface {
		Address() common.Address
		SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	}

	// NonceSource provides the authoritative pending transaction count.
	NonceSource interface {
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	}

	// TxSubmitter submits one transaction intent with a retry budget.
	TxSubmitter interface {
		Submit(ctx context.Context, intent TxIntent, retries int) (model.SubmissionResult, error)
	}

	// Observer receives progress events while a run executes. Implementations
	// must be safe for use from the orchestrator goroutine.
	Observer interface {
		WalletResolved(address common.Address)
		ItemSettled(result *model.SubmissionResult, failure *model.FailureRecord)
	}

	// LogWriter persists settled submission entries for one run.
	LogWriter interface {
		Start(ctx context.Context)
		Append(ctx context.Context, entry model.SubmissionResult) error
		Stop() error
	}

	// SubmitterMetrics records submission outcomes.
	SubmitterMetrics interface {
		ObserveSubmission(err error, attempts int, started time.Time)
	}

	// OrchestratorMetrics records whole-run outcomes.
	OrchestratorMetrics interface {
		ObserveRun(mode model.Mode, err error, items int, started time.Time)
	}
)
