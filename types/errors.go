package types

import (
	"errors"
	"fmt"
)

// Category sentinels. Every typed error below unwraps to exactly one of
// these so callers can branch with errors.Is without depending on the
// concrete type.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownToken        = errors.New("unknown token")
)

type AuthorizationError struct {
	Principal Principal
	Role      RoleID
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("principal %s does not hold role %s", e.Principal, e.Role)
}

func (e *AuthorizationError) Unwrap() error {
	return ErrUnauthorized
}

type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return e.Msg
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// ErrInvalidArgumentf builds an InvalidArgumentError with a formatted message.
func ErrInvalidArgumentf(format string, args ...any) error {
	return &InvalidArgumentError{Msg: fmt.Sprintf(format, args...)}
}

type InsufficientBalanceError struct {
	Token     TokenID
	Principal Principal
	Have      uint64
	Want      uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance of token %s for %s: have %d, want %d", e.Token, e.Principal, e.Have, e.Want)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

type UnknownTokenError struct {
	Token TokenID
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown token %s", e.Token)
}

func (e *UnknownTokenError) Unwrap() error {
	return ErrUnknownToken
}
