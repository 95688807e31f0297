// Package worker consumes appointment events from Pub/Sub and fans each one
// out to the subscribed devices.
package worker

import (
	"time"
)

// ReceiveConfig holds flow control settings for the event subscription.
type ReceiveConfig struct {
	// MaxOutstandingMessages bounds how many events are dispatched at once.
	// Default: 4
	MaxOutstandingMessages int

	// MaxExtension is how long the ack deadline may be extended while an
	// event is being dispatched.
	// Default: 10 minutes
	MaxExtension time.Duration
}

// DefaultReceiveConfig returns the default receive settings.
func DefaultReceiveConfig() ReceiveConfig {
	return ReceiveConfig{
		MaxOutstandingMessages: 4,
		MaxExtension:           10 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultReceiveConfig.
func (c ReceiveConfig) withDefaults() ReceiveConfig {
	d := DefaultReceiveConfig()
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = d.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	return c
}
