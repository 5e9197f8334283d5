package batch

import "time"

const (
	defaultPrecision = 4

	defaultBackoffStep = 2 * time.Second
	defaultBackoffCap  = 30 * time.Second

	defaultConfirmAttempts = 30
	defaultConfirmInterval = time.Second

	// Gas limit fallbacks when estimation fails.
	defaultGasLimitTransfer = 21000
	defaultGasLimitCall     = 100000

	defaultNonceQuiescence = time.Minute
)
