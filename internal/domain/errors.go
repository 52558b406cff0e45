package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidProvider is returned when the requested exchange is not in the registry.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidAssetAmount is returned when an amount is outside the upstream trading limits.
	ErrInvalidAssetAmount = errors.New("invalid asset amount")

	// ErrPairNotFound is returned when no upstream (or intermediary chain) supports the pair.
	// It is the only error kind the resolver recovers from.
	ErrPairNotFound = errors.New("pair not found")

	// ErrProviderBadResponse is returned for malformed payloads or unclassified non-200 statuses.
	ErrProviderBadResponse = errors.New("provider bad response")

	// ErrInvalidRequest is returned when a convert request fails boundary validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// AmountError reports an amount outside the allowed range of one leg.
type AmountError struct {
	Amount decimal.Decimal
	Min    decimal.Decimal
	Max    decimal.Decimal
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("Amount %s is outside the allowed range: %s - %s", e.Amount, e.Min, e.Max)
}

func (e *AmountError) Unwrap() error {
	return ErrInvalidAssetAmount
}

// BadResponseError carries the diagnostic detail of an unexpected upstream reply.
type BadResponseError struct {
	Provider string
	URL      string
	Status   int
	Reason   string
}

func (e *BadResponseError) Error() string {
	msg := fmt.Sprintf("%s: bad response from %s (status %d)", e.Provider, e.URL, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *BadResponseError) Unwrap() error {
	return ErrProviderBadResponse
}

// NetworkError represents a transport failure (dial, timeout, read) talking to an upstream.
// It is never retried and surfaces as an internal error.
type NetworkError struct {
	Op  string // Operation that failed (e.g., "request", "read")
	URL string
	Err error // Underlying error
}

func (e *NetworkError) Error() string {
	return e.Op + " " + e.URL + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(op, url string, err error) *NetworkError {
	return &NetworkError{Op: op, URL: url, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PairError annotates ErrPairNotFound (or ErrInvalidProvider) with a caller-facing message.
type PairError struct {
	Msg string
	Err error
}

func (e *PairError) Error() string {
	return e.Msg
}

func (e *PairError) Unwrap() error {
	return e.Err
}

// NewPairNotFound builds a not-found error with a human readable message.
func NewPairNotFound(format string, args ...any) error {
	return &PairError{Msg: fmt.Sprintf(format, args...), Err: ErrPairNotFound}
}

// NewInvalidProvider builds an unknown-provider error for name.
func NewInvalidProvider(name string) error {
	return &PairError{Msg: fmt.Sprintf("Provider '%s' is not supported.", name), Err: ErrInvalidProvider}
}

// IsPairNotFound reports whether err means the pair is unsupported.
func IsPairNotFound(err error) bool {
	return errors.Is(err, ErrPairNotFound)
}
