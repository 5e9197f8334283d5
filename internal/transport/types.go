// Package transport exposes the HTTP job and interaction API.
package transport

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Registry is the job table mutating endpoints submit work to.
	Registry interface {
		Create(cfg model.BatchConfig) (model.Job, error)
		Get(id string) (model.Job, error)
		List() []model.JobSummary
		Delete(id string) error
	}

	// Signer signs messages and typed payloads with the server wallet.
	Signer interface {
		Address() common.Address
		SignText(message []byte) (string, error)
		SignTypedPayload(payload json.RawMessage) (string, error)
	}

	// ChainReader is the read-only network access the wallet endpoint needs.
	ChainReader interface {
		BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
		CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	}
)
