package feed

import (
	"errors"
	"fmt"
)

// ErrPageNotFound is returned by page repositories for unknown page ids.
var ErrPageNotFound = errors.New("page not found")

// ErrEntityNotFound is returned by entity repositories for unknown content ids.
var ErrEntityNotFound = errors.New("entity not found")

// ContractErrorCode categorizes collaborator contract violations.
type ContractErrorCode string

const (
	// ErrCodeUnsorted indicates a repository returned entities out of
	// (LastModified, ContentID) order.
	ErrCodeUnsorted ContractErrorCode = "UNSORTED"

	// ErrCodeUnexpectedPage indicates a repository returned an entity
	// attached to a page other than the one requested.
	ErrCodeUnexpectedPage ContractErrorCode = "UNEXPECTED_PAGE"

	// ErrCodeDuplicateEntity indicates the same content id appeared twice in
	// one batch.
	ErrCodeDuplicateEntity ContractErrorCode = "DUPLICATE_ENTITY"

	// ErrCodeInvalidEntity indicates an entity failed basic validation.
	ErrCodeInvalidEntity ContractErrorCode = "INVALID_ENTITY"
)

// ContractError reports a collaborator that broke its contract. These are
// bugs in the collaborator and are never retried.
type ContractError struct {
	Code      ContractErrorCode
	Operation string
	Message   string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewContractError creates a ContractError.
func NewContractError(code ContractErrorCode, operation, format string, args ...any) *ContractError {
	return &ContractError{
		Code:      code,
		Operation: operation,
		Message:   fmt.Sprintf(format, args...),
	}
}

// IsContractError reports whether err is (or wraps) a ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
