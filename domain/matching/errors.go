package matching

import "errors"

var (
	ErrUnknownInstrument    = errors.New("unknown instrument")
	ErrBookExists           = errors.New("order book already exists")
	ErrDuplicateOrderID     = errors.New("duplicate order id")
	ErrUnsupportedOrderType = errors.New("unsupported order type")
	// ErrMarketOrderImmutable is returned for cancel or modify of a market
	// order id. Market orders never rest.
	ErrMarketOrderImmutable = errors.New("market orders cannot be cancelled or modified")
)
