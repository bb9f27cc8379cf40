package eas

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Default configuration values.
const (
	defaultInitialBackoff    = 1 * time.Second
	defaultMaxBackoff        = 60 * time.Second
	defaultBackoffFactor     = 2.0
	defaultPingInterval      = 30 * time.Second
	defaultReadTimeout       = 60 * time.Second
	defaultChannelBufferSize = 100
	defaultReceiptInterval   = 2 * time.Second
	defaultReceiptTimeout    = 2 * time.Minute
	defaultConnectAttempts   = 5
)

// Config holds the configuration for the EAS ledger adapter.
type Config struct {
	// HTTPURL is the JSON-RPC HTTP endpoint for queries and transactions.
	HTTPURL string

	// WebSocketURL is the JSON-RPC WebSocket endpoint for live
	// subscriptions. Required only when Subscribe is used.
	WebSocketURL string

	// EAS is the attestation contract address.
	EAS common.Address

	// Arbiter is the trusted oracle arbiter contract address.
	Arbiter common.Address

	// PrivateKey is the hex-encoded signing key for arbitration
	// transactions. Required only when submitting.
	PrivateKey string

	// StartBlock is the earliest block historical queries consult. Zero
	// scans from genesis.
	StartBlock uint64

	// InitialBackoff is the initial delay before reconnecting after a
	// WebSocket disconnect. Defaults to 1 second if not set.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between reconnection attempts.
	// Defaults to 60 seconds if not set.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each failed
	// attempt. Defaults to 2.0 if not set.
	BackoffFactor float64

	// PingInterval is how often to ping the WebSocket connection.
	// Defaults to 30 seconds if not set.
	PingInterval time.Duration

	// ReadTimeout is the maximum time to wait for a WebSocket message
	// before considering the connection dead. Defaults to 60 seconds.
	ReadTimeout time.Duration

	// ChannelBufferSize is the size of the attestation event channel
	// buffer. Defaults to 100 if not set.
	ChannelBufferSize int

	// ReceiptInterval is the polling interval while waiting for a
	// transaction receipt. Defaults to 2 seconds if not set.
	ReceiptInterval time.Duration

	// ReceiptTimeout bounds the wait for a transaction receipt.
	// Defaults to 2 minutes if not set.
	ReceiptTimeout time.Duration

	// MaxConnectAttempts is how many consecutive WebSocket sessions may
	// fail before a confirmed subscription until the stream gives up and
	// reports the failure. Defaults to 5 if not set.
	MaxConnectAttempts int

	// Logger is the structured logger. If not set, a default logger will
	// be used.
	Logger *slog.Logger
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.HTTPURL == "" {
		return errors.New("HTTPURL is required")
	}
	if c.EAS == (common.Address{}) {
		return errors.New("EAS address is required")
	}
	if c.Arbiter == (common.Address{}) {
		return errors.New("Arbiter address is required")
	}
	return nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = defaultBackoffFactor
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.ChannelBufferSize == 0 {
		c.ChannelBufferSize = defaultChannelBufferSize
	}
	if c.ReceiptInterval == 0 {
		c.ReceiptInterval = defaultReceiptInterval
	}
	if c.ReceiptTimeout == 0 {
		c.ReceiptTimeout = defaultReceiptTimeout
	}
	if c.MaxConnectAttempts == 0 {
		c.MaxConnectAttempts = defaultConnectAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
