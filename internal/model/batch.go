// Package model defines domain models for batch transaction runs.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects the kind of work a batch run performs.
type Mode string

const (
	// ModeTokenTransfer sends a planned stream of ERC20 transfers to one recipient.
	ModeTokenTransfer Mode = "token-transfer"
	// ModeRaw sends caller-supplied raw contract calls, best effort per item.
	ModeRaw Mode = "raw"
	// ModeEthTransfer sends native currency transfers, best effort per item.
	ModeEthTransfer Mode = "eth-transfer"
)

// RawTx is one caller-supplied transaction in a raw or eth-transfer batch.
type RawTx struct {
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	GasLimit uint64 `json:"gasLimit,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// BatchConfig is the immutable input to one orchestrator run.
type BatchConfig struct {
	Mode Mode `json:"mode"`

	RPCURL string `json:"rpcUrl,omitempty"`

	// Token-transfer mode.
	Token     string `json:"token,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Count     int    `json:"count,omitempty"`
	MinAmount string `json:"minAmount,omitempty"`
	MaxAmount string `json:"maxAmount,omitempty"`
	Precision int    `json:"precision,omitempty"`

	// Raw and eth-transfer modes.
	Transactions []RawTx `json:"transactions,omitempty"`

	DelaySeconds float64 `json:"delaySeconds"`
	MaxRetries   int     `json:"maxRetries"`
	GasLimit     uint64  `json:"gasLimit,omitempty"`
	GasPrice     string  `json:"gasPrice,omitempty"`
	LogDir       string  `json:"logDir,omitempty"`
	DryRun       bool    `json:"dryRun,omitempty"`
}

// Delay returns the configured inter-transaction pause.
func (c BatchConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// Validate checks mode-specific required fields before a run starts.
func (c BatchConfig) Validate() error {
	if c.MaxRetries < 1 {
		return errors.New("max retries must be at least 1")
	}
	if c.DelaySeconds < 0 {
		return errors.New("delay must not be negative")
	}
	switch c.Mode {
	case ModeTokenTransfer:
		if c.Token == "" {
			return errors.New("token address is required")
		}
		if c.Recipient == "" {
			return errors.New("recipient address is required")
		}
		if c.Count < 1 {
			return errors.New("count must be at least 1")
		}
		if c.MinAmount == "" || c.MaxAmount == "" {
			return errors.New("min and max amounts are required")
		}
	case ModeRaw, ModeEthTransfer:
		if len(c.Transactions) == 0 {
			return errors.New("at least one transaction is required")
		}
		for i, tx := range c.Transactions {
			if tx.To == "" {
				return fmt.Errorf("transaction %d: to address is required", i)
			}
		}
	default:
		return fmt.Errorf("unknown batch mode %q", c.Mode)
	}
	return nil
}

// PlannedItem is one unit of work produced by the planner or expanded from a
// caller-supplied transaction list.
type PlannedItem struct {
	Index      int    `json:"index"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount,omitempty"`
	BaseAmount string `json:"baseAmount,omitempty"`

	// Raw batches only.
	ItemIndex int    `json:"itemIndex,omitempty"`
	Repeat    int    `json:"repeat,omitempty"`
	Data      string `json:"data,omitempty"`
	Value     string `json:"value,omitempty"`
	GasLimit  uint64 `json:"gasLimit,omitempty"`
	GasPrice  string `json:"gasPrice,omitempty"`
}

// SubmissionResult records the terminal outcome of one submitted item.
// BlockNumber and Status are set only when a confirmation was observed.
type SubmissionResult struct {
	Index       int     `json:"index"`
	Amount      string  `json:"amount,omitempty"`
	BaseAmount  string  `json:"baseAmount,omitempty"`
	Nonce       uint64  `json:"nonce"`
	Hash        string  `json:"hash,omitempty"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
	Status      *uint64 `json:"status,omitempty"`
	GasUsed     uint64  `json:"gasUsed,omitempty"`
	ItemIndex   int     `json:"itemIndex,omitempty"`
	Repeat      int     `json:"repeat,omitempty"`
}

// Confirmed reports whether a confirmation was observed for the submission.
func (r SubmissionResult) Confirmed() bool {
	return r.BlockNumber != nil
}

// FailureRecord captures an item that exhausted its retry budget.
type FailureRecord struct {
	Index  int    `json:"index"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

// BatchRunSummary aggregates a completed run. Successful+Failed always
// equals Total.
type BatchRunSummary struct {
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Duration   time.Duration      `json:"duration"`
	Results    []SubmissionResult `json:"results"`
	Failures   []FailureRecord    `json:"failures,omitempty"`
}
