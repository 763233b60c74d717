// Package relay forwards call signaling between two addressed peers.
//
// The relay keeps no call state. Ringing, connected and ended are negotiated
// by the endpoints themselves, the server only resolves the target address.
// Signals are passed through verbatim, minus the target address, with the
// sender attached. A from field set by the caller is overwritten.
package relay

import (
	"encoding/json"
	"fmt"

	"uk.co.dudmesh.parley/internal/metrics"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/registry"
)

// Router is the subset of the connection registry the relay needs.
type Router interface {
	SendToUser(handle model.Handle, name string, data interface{}, except *registry.Session) int
}

const (
	fieldTarget = "target"
	fieldFrom   = "from"
)

// Relayed is what the target receives: every inbound field except target,
// with the sender's handle under from.
type Relayed map[string]json.RawMessage

// Events maps inbound signaling events to the event delivered to the target.
var Events = map[string]string{
	"call-initiate":        "new-call",
	"call-answer":          "call-answered",
	"ice-candidate":        "ice-candidate",
	"call-cancel":          "call-canceled",
	"call-reject":          "call-rejected",
	"call-end":             "call-ended",
	"media-change-request": "media-change-requested",
	"media-change-approve": "media-change-approved",
	"media-change-reject":  "media-change-rejected",
	"media-track-end":      "media-track-ended",
	"renegotiate-offer":    "renegotiation-offer",
	"renegotiate-answer":   "renegotiation-answer",
}

type Relay struct {
	router     Router
	maxPayload int
}

func New(router Router, maxPayload int) *Relay {
	return &Relay{router: router, maxPayload: maxPayload}
}

// Forward relays one signal. An unreachable target is not an error: the
// signal is dropped and the caller is expected to time out on its own.
// Errors are only returned for malformed signals.
func (r *Relay) Forward(from *registry.Session, event string, data json.RawMessage) error {
	outbound, ok := Events[event]
	if !ok {
		return fmt.Errorf("relaying %s: %w", event, model.ErrorUnknownEvent)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding %s: %w", event, model.ErrorInvalidPayload)
	}

	var target model.Handle
	if raw, ok := fields[fieldTarget]; ok {
		if err := json.Unmarshal(raw, &target); err != nil {
			return fmt.Errorf("decoding %s target: %w", event, model.ErrorInvalidPayload)
		}
	}
	if target == "" {
		return fmt.Errorf("relaying %s: %w", event, model.ErrorMissingTarget)
	}
	delete(fields, fieldTarget)

	if r.maxPayload > 0 {
		body, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", event, err)
		}
		if len(body) > r.maxPayload {
			return fmt.Errorf("relaying %s (%d bytes): %w", event, len(body), model.ErrorPayloadTooLarge)
		}
	}

	sender, err := json.Marshal(from.User.Handle)
	if err != nil {
		return fmt.Errorf("encoding %s sender: %w", event, err)
	}
	fields[fieldFrom] = sender

	delivered := r.router.SendToUser(target, outbound, Relayed(fields), from)

	outcome := metrics.OutcomeDelivered
	if delivered == 0 {
		outcome = metrics.OutcomeDropped
	}
	metrics.Signals.WithLabelValues(event, outcome).Inc()

	return nil
}
