// Package evm wraps the go-ethereum client with metrics instrumentation and
// signing helpers.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

type (
	// RPCMetrics records metrics for RPC calls.
	RPCMetrics interface {
		Observe(operation string, err error, started time.Time)
	}
)

// Client wraps ethclient with metrics instrumentation.
type Client struct {
	eth        *ethclient.Client
	rpcMetrics RPCMetrics
}

// Dial connects to an EVM JSON-RPC endpoint and returns an instrumented client.
func Dial(ctx context.Context, rawURL string, rpcMetrics RPCMetrics) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc endpoint: %w", err)
	}
	return NewClient(ethclient.NewClient(rpcClient), rpcMetrics), nil
}

// NewClient constructs an instrumented client around an existing ethclient.
func NewClient(eth *ethclient.Client, rpcMetrics RPCMetrics) *Client {
	return &Client{
		eth:        eth,
		rpcMetrics: rpcMetrics,
	}
}

// Close shuts down the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the chain id of the connected network.
func (c *Client) ChainID(ctx context.Context) (id *big.Int, err error) {
	started := time.Now()
	defer func() {
		c.observe("chain_id", err, started)
	}()
	return c.eth.ChainID(ctx)
}

// PendingNonceAt returns the account's pending transaction count.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (nonce uint64, err error) {
	started := time.Now()
	defer func() {
		c.observe("pending_nonce_at", err, started)
	}()
	return c.eth.PendingNonceAt(ctx, account)
}

// BalanceAt returns the native currency balance of the account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (balance *big.Int, err error) {
	started := time.Now()
	defer func() {
		c.observe("balance_at", err, started)
	}()
	return c.eth.BalanceAt(ctx, account, blockNumber)
}

// SuggestGasPrice returns the network's currently suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (price *big.Int, err error) {
	started := time.Now()
	defer func() {
		c.observe("suggest_gas_price", err, started)
	}()
	return c.eth.SuggestGasPrice(ctx)
}

// EstimateGas estimates the gas needed to execute the call.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (gas uint64, err error) {
	started := time.Now()
	defer func() {
		c.observe("estimate_gas", err, started)
	}()
	return c.eth.EstimateGas(ctx, msg)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (err error) {
	started := time.Now()
	defer func() {
		c.observe("send_transaction", err, started)
	}()
	return c.eth.SendTransaction(ctx, tx)
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (receipt *types.Receipt, err error) {
	started := time.Now()
	defer func() {
		c.observe("transaction_receipt", err, started)
	}()
	return c.eth.TransactionReceipt(ctx, txHash)
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) (out []byte, err error) {
	started := time.Now()
	defer func() {
		c.observe("call_contract", err, started)
	}()
	return c.eth.CallContract(ctx, msg, blockNumber)
}

func (c *Client) observe(operation string, err error, started time.Time) {
	if c.rpcMetrics == nil {
		return
	}
	c.rpcMetrics.Observe(operation, err, started)
}
