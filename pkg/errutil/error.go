package errutil

import (
	"errors"
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func NotFound(msg string, err error, options ...Option) error {
	return New(StatusNotFound, msg, append(options, WithErr(err))...)
}

func Conflict(msg string, err error, options ...Option) error {
	return New(StatusConflict, msg, append(options, WithErr(err))...)
}

func BadRequest(msg string, err error, options ...Option) error {
	return New(StatusBadRequest, msg, append(options, WithErr(err))...)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return New(StatusValidationFailed, msg, append(options, WithErr(err))...)
}

func Internal(msg string, err error, options ...Option) error {
	return New(StatusInternal, msg, append(options, WithErr(err))...)
}

func Timeout(msg string, err error, options ...Option) error {
	return New(StatusTimeout, msg, append(options, WithErr(err))...)
}

func BadGateway(msg string, err error, options ...Option) error {
	return New(StatusBadGateway, msg, append(options, WithErr(err))...)
}

// Monetary error taxonomy. Handlers branch on Status(), so every condition a
// caller is expected to recover from gets its own CoreStatus value.

// InsufficientFunds rejects a debit or stake the account balance cannot cover.
func InsufficientFunds(msg string, options ...Option) error {
	return New(StatusInsufficientFunds, msg, options...)
}

// InvalidState rejects an operation on a session or settlement that is not in
// the expected lifecycle state, e.g. a second Close.
func InvalidState(msg string, options ...Option) error {
	return New(StatusInvalidState, msg, options...)
}

// NoFundsAvailable rejects a settlement request with nothing to withdraw.
func NoFundsAvailable(msg string, options ...Option) error {
	return New(StatusNoFundsAvailable, msg, options...)
}

// VerificationFailed surfaces a payment oracle rejection. No ledger mutation
// has happened when this is returned.
func VerificationFailed(msg string, err error, options ...Option) error {
	return New(StatusVerificationFailed, msg, append(options, WithErr(err))...)
}

// PayoutFailed surfaces a payout agent failure. The settlement row records the
// message; funds remain claimable through a fresh request.
func PayoutFailed(msg string, err error, options ...Option) error {
	return New(StatusPayoutFailed, msg, append(options, WithErr(err))...)
}

// ConsistencyViolation marks a broken balance chain. The affected account gets
// frozen; this is operator territory, not a retry.
func ConsistencyViolation(msg string, options ...Option) error {
	return New(StatusConsistencyViolation, msg, options...)
}

// StatusOf extracts the CoreStatus carried by err, or StatusUnknown.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return StatusUnknown
}
