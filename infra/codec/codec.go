// Package codec encodes trades and intents for the journal and Kafka.
//
// Proto is the compact binary form (protobuf wire format written field by
// field, no generated code). JSON is the human readable form used where
// consumers are not Go.
package codec

import (
	"errors"
	"fmt"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
)

var ErrMalformed = errors.New("codec: malformed payload")

type Codec interface {
	Name() string
	EncodeTrade(t matching.Trade) ([]byte, error)
	DecodeTrade(b []byte) (matching.Trade, error)
	EncodeIntent(in intent.Intent) ([]byte, error)
	DecodeIntent(b []byte) (intent.Intent, error)
}

// ByName returns "proto" or "json".
func ByName(name string) (Codec, error) {
	switch name {
	case "", "proto":
		return Proto{}, nil
	case "json":
		return JSON{}, nil
	}
	return nil, fmt.Errorf("codec: unknown format %q", name)
}
