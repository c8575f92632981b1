package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected        = errors.New("not connected")
	ErrAuthentication      = errors.New("authentication failed")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrOrderInFlight       = errors.New("order already in flight")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBotRunning          = errors.New("bot already running")
	ErrBotNotRunning       = errors.New("bot is not running")
	ErrMalformedSettlement = errors.New("malformed settlement payload")
	ErrUnknownStrategy     = errors.New("unknown strategy")
)

// SettlementError rejects a contract update frame. ContractID is empty when
// the frame did not carry one.
type SettlementError struct {
	ContractID string
	Reason     string
}

func (e *SettlementError) Error() string {
	if e.ContractID == "" {
		return fmt.Sprintf("%v: %s", ErrMalformedSettlement, e.Reason)
	}
	return fmt.Sprintf("%v: contract %s: %s", ErrMalformedSettlement, e.ContractID, e.Reason)
}

func (e *SettlementError) Unwrap() error { return ErrMalformedSettlement }
