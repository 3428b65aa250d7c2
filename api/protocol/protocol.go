// Package protocol is the JSON wire format spoken by the gateways: intents
// in, reports out.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"matchbook/domain/intent"
	"matchbook/infra/codec"
	"matchbook/service"
)

// Parse decodes one intent message. A message without clientId gets a
// generated one so the caller can still correlate the report.
func Parse(raw []byte) (intent.Intent, error) {
	in, err := codec.JSON{}.DecodeIntent(raw)
	if err != nil {
		return intent.Intent{}, err
	}
	if in.ClientID == "" {
		in.ClientID = uuid.NewString()
	}
	return in, nil
}

// Encode is the inverse of Parse.
func Encode(in intent.Intent) ([]byte, error) {
	return codec.JSON{}.EncodeIntent(in)
}

// Report is the outbound confirmation of one applied intent.
type Report struct {
	Seq        uint64    `json:"seq"`
	Type       string    `json:"type"`
	ClientID   string    `json:"clientId,omitempty"`
	Instrument string    `json:"instrument,omitempty"`
	OrderID    uint64    `json:"orderId,omitempty"`
	Status     string    `json:"status"`
	Remaining  int64     `json:"remaining,omitempty"`
	Unfilled   int64     `json:"unfilled,omitempty"`
	Error      string    `json:"error,omitempty"`
	Trades     []any     `json:"trades,omitempty"`
	AppliedAt  time.Time `json:"appliedAt"`
}

func NewReport(r service.Result) Report {
	rep := Report{
		Seq:        r.Seq,
		Type:       r.Kind.String(),
		ClientID:   r.ClientID,
		Instrument: r.Instrument,
		OrderID:    r.OrderID,
		Status:     r.Status.String(),
		Remaining:  r.Remaining,
		Unfilled:   r.Unfilled,
		AppliedAt:  r.Applied,
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	for _, t := range r.Trades {
		rep.Trades = append(rep.Trades, codec.TradeJSON(t))
	}
	return rep
}

// EncodeReport returns the Kafka key (client id) and JSON value of r.
func EncodeReport(r service.Result) (key, value []byte, err error) {
	value, err = json.Marshal(NewReport(r))
	if err != nil {
		return nil, nil, err
	}
	return []byte(r.ClientID), value, nil
}
