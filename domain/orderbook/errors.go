package orderbook

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is the parent of every validation error below.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrInvalidPrice    = fmt.Errorf("%w: price must be greater than zero", ErrInvalidArgument)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity out of range", ErrInvalidArgument)
	ErrInvalidSide     = fmt.Errorf("%w: unknown side", ErrInvalidArgument)
	ErrInvalidType     = fmt.Errorf("%w: unknown order type", ErrInvalidArgument)

	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExists   = errors.New("order already resting")
)
