package payment

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// EventCaptured is the event type the gateway pushes once a payment settles.
const EventCaptured = "payment.captured"

// Event is a parsed gateway webhook payload.
type Event struct {
	Type             string
	GatewayOrderID   string
	GatewayPaymentID string
}

// ParseEvent decodes a webhook body of the form
//
//	{"event": "payment.captured", "payload": {"order_id": "...", "payment_id": "..."}}
//
// Unknown fields are skipped so gateway payload additions do not break us.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ev.Type = v
			return nil
		case "payload":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "order_id":
					v, err := d.Str()
					if err != nil {
						return err
					}
					ev.GatewayOrderID = v
					return nil
				case "payment_id":
					v, err := d.Str()
					if err != nil {
						return err
					}
					ev.GatewayPaymentID = v
					return nil
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode webhook event")
	}
	if ev.Type == "" {
		return nil, errors.New("webhook event missing type")
	}
	return &ev, nil
}
