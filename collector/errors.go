package collector

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotDeclaredType marks an explicit contract that is not a declared
	// reference type (a primitive, array, pointer or void type).
	ErrNotDeclaredType = errors.New("not a valid contract type")

	// ErrNotAssignable marks an implementation that cannot be used where
	// its explicit contract is expected.
	ErrNotAssignable = errors.New("not assignable to contract type")
)

// InvalidContractError rejects a declaration whose explicit contract
// cannot be used, or whose annotation could not be decoded.
type InvalidContractError struct {
	Implementation string
	Contract       string
	Err            error
}

func (e *InvalidContractError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNotDeclaredType):
		return fmt.Sprintf("type '%s' is not a valid contract type", e.Contract)
	case errors.Is(e.Err, ErrNotAssignable):
		return fmt.Sprintf("type '%s' is not assignable to contract type '%s'", e.Implementation, e.Contract)
	default:
		return fmt.Sprintf("invalid service annotation on '%s': %v", e.Implementation, e.Err)
	}
}

func (e *InvalidContractError) Unwrap() error {
	return e.Err
}

// ContractInferenceError rejects a declaration without an explicit
// contract when the contract cannot be inferred: the type has neither a
// non-trivial supertype nor interfaces, or it has both.
type ContractInferenceError struct {
	Implementation string
	Supertype      string
	Interfaces     []string
}

func (e *ContractInferenceError) Error() string {
	msg := fmt.Sprintf("cannot infer contract type for '%s'", e.Implementation)
	if e.Ambiguous() {
		return fmt.Sprintf("%s: both supertype '%s' and interfaces [%s] are candidates",
			msg, e.Supertype, strings.Join(e.Interfaces, ", "))
	}
	return msg + ": no supertype or interface"
}

// Ambiguous reports whether inference failed because there were too many
// candidates rather than none.
func (e *ContractInferenceError) Ambiguous() bool {
	return e.Supertype != "" && len(e.Interfaces) > 0
}

// IsInvalidContract returns true if err is or wraps an InvalidContractError.
func IsInvalidContract(err error) bool {
	var ice *InvalidContractError
	return errors.As(err, &ice)
}

// IsContractInference returns true if err is or wraps a
// ContractInferenceError.
func IsContractInference(err error) bool {
	var cie *ContractInferenceError
	return errors.As(err, &cie)
}
