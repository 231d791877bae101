// Package apperrors holds the error taxonomy shared by the repositories, the
// services and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	UserNotFound         Code = "UserNotFound"
	ItemNotFound         Code = "ItemNotFound"
	LoanNotFound         Code = "LoanNotFound"
	NoCopiesAvailable    Code = "NoCopiesAvailable"
	LoanAlreadyReturned  Code = "LoanAlreadyReturned"
	ReservationNotFound  Code = "ReservationNotFound"
	ReservationNotActive Code = "ReservationNotActive"
	FineNotFound         Code = "FineNotFound"
	FineAlreadyPaid      Code = "FineAlreadyPaid"
)

// ValidationError reports malformed input to a mutating operation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// BusinessError reports a lending rule violation.
type BusinessError struct {
	Code    Code
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NotFound reports whether the violation is a missing entity.
func (e *BusinessError) NotFound() bool {
	switch e.Code {
	case UserNotFound, ItemNotFound, LoanNotFound, ReservationNotFound, FineNotFound:
		return true
	}
	return false
}

// DataAccessError wraps a store failure. Only Op and the message of Err are
// exposed through Error.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	if e.Err == nil {
		return "data access: " + e.Op
	}
	return fmt.Sprintf("data access: %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

// AuthenticationError reports rejected credentials or a rejected registration.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Message
}

func Validation(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func Business(code Code, format string, args ...interface{}) error {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func DataAccess(op string, err error) error {
	return &DataAccessError{Op: op, Err: err}
}

func Authentication(msg string) error {
	return &AuthenticationError{Message: msg}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsBusiness(err error) bool {
	var target *BusinessError
	return errors.As(err, &target)
}

func IsDataAccess(err error) bool {
	var target *DataAccessError
	return errors.As(err, &target)
}

func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// HasCode reports whether err is a BusinessError carrying code.
func HasCode(err error, code Code) bool {
	var target *BusinessError
	return errors.As(err, &target) && target.Code == code
}
