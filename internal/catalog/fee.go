package catalog

import (
	"sync"

	"wifree_bot/internal/money"
)

// FeeConfig holds the SMS delivery fee. Admins can change it at runtime;
// conversations capture the fee when they quote a total, so an in-flight
// purchase keeps the price it displayed.
type FeeConfig struct {
	mu  sync.RWMutex
	fee money.Amount
}

// NewFeeConfig returns a config starting at the given fee.
func NewFeeConfig(initial money.Amount) *FeeConfig {
	return &FeeConfig{fee: initial}
}

// SMSFee returns the current fee.
func (c *FeeConfig) SMSFee() money.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fee
}

// SetSMSFee replaces the fee for all future quotes.
func (c *FeeConfig) SetSMSFee(fee money.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fee = fee
}
