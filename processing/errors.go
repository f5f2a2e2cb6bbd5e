package processing

import (
	"errors"
	"fmt"
)

var (
	ErrNoDataReceived = errors.New("no data received")
	ErrNoPlacer       = errors.New("no placer for the selected storage mode")
)

// PlacementError fails the whole batch. Files recorded before it stay recorded.
type PlacementError struct {
	Index int
	Err   error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placing file %d: %v", e.Index, e.Err)
}

func (e *PlacementError) Unwrap() error {
	return e.Err
}
