package search

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSearchExhausted is matched by every *ExhaustedError.
var ErrSearchExhausted = errors.New("search exhausted")

// errStopped halts a worker once another worker has found a witness.
var errStopped = errors.New("search stopped")

// ExhaustedError reports that no decomposition of N into at most K sets
// exists.
type ExhaustedError struct {
	N int
	K int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no decomposition of %d into %d sets", e.N, e.K)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrSearchExhausted
}

// IsExhausted returns true if err proves that no decomposition exists.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrSearchExhausted)
}

// UniverseTooSmallError reports that the configured universe cannot rule
// a decomposition in or out: either N exceeds 2^Universe, or every
// candidate found needed more positions than the universe offers.
type UniverseTooSmallError struct {
	N        int
	K        int
	Universe int
	Required int
}

func (e *UniverseTooSmallError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("universe of %d positions is too small to decide %d with %d sets, %d required", e.Universe, e.N, e.K, e.Required)
	}
	return fmt.Sprintf("universe of %d positions is too small to decide %d with %d sets", e.Universe, e.N, e.K)
}

// UnsupportedError reports a request outside what a strategy handles:
// more than MaxK sets, or when MaxWidth is set, a witness that may need
// Width positions.
type UnsupportedError struct {
	Strategy Strategy
	K        int
	MaxK     int
	Width    int
	MaxWidth int
}

func (e *UnsupportedError) Error() string {
	if e.MaxWidth > 0 {
		return fmt.Sprintf("%s search walks at most %d positions, %d sets may need %d", e.Strategy, e.MaxWidth, e.K, e.Width)
	}
	return fmt.Sprintf("%s search supports at most %d sets, got %d", e.Strategy, e.MaxK, e.K)
}
