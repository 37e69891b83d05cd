// Package calcerror defines the failure taxonomy shared by the calculation engines.
package calcerror

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind int

const (
	// KindArithmeticOverflow is any checked add/sub/mul/div/shift or narrowing step leaving its domain.
	KindArithmeticOverflow Kind = iota + 1
	// KindInvalidPrecondition signals caller misuse: zero amounts, degenerate ranges, cooldown violations.
	KindInvalidPrecondition
	// KindInfeasibleRatio means the requested token ratio cannot be serviced by the chosen range.
	KindInfeasibleRatio
)

var (
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrInvalidPrecondition = errors.New("invalid precondition")
	ErrInfeasibleRatio     = errors.New("infeasible ratio")
)

func (k Kind) String() string {
	switch k {
	case KindArithmeticOverflow:
		return "arithmetic_overflow"
	case KindInvalidPrecondition:
		return "invalid_precondition"
	case KindInfeasibleRatio:
		return "infeasible_ratio"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindArithmeticOverflow:
		return ErrArithmeticOverflow
	case KindInvalidPrecondition:
		return ErrInvalidPrecondition
	case KindInfeasibleRatio:
		return ErrInfeasibleRatio
	default:
		return nil
	}
}

// Error is a typed engine failure. It matches its Kind's sentinel with errors.Is.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind.sentinel(), e.Detail)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func Overflow(op string, detail string) error {
	return &Error{Kind: KindArithmeticOverflow, Op: op, Detail: detail}
}

func Precondition(op string, detail string) error {
	return &Error{Kind: KindInvalidPrecondition, Op: op, Detail: detail}
}

func Infeasible(op string, detail string) error {
	return &Error{Kind: KindInfeasibleRatio, Op: op, Detail: detail}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0 when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
