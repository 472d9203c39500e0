package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is wrapped by PositionError.
	ErrIndexOutOfRange = errors.New("catalog: index out of range")
	// ErrNotOpen is returned by operations called before Manager.Open.
	ErrNotOpen = errors.New("catalog: not open")
)

// PositionError reports a position outside [1, Len].
type PositionError struct {
	Position int
	Len      int
}

func (e *PositionError) Error() string {
	if e.Len == 0 {
		return fmt.Sprintf("catalog: position %d out of range (catalog is empty)", e.Position)
	}
	return fmt.Sprintf("catalog: position %d out of range [1, %d]", e.Position, e.Len)
}

func (e *PositionError) Unwrap() error { return ErrIndexOutOfRange }
