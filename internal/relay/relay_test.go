package relay

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"uk.co.dudmesh.parley/internal/metrics"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/registry"
)

func TestRelay(t *testing.T) {
	assert := assert.New(t)

	reg := registry.New(8)
	alice := reg.NewSession(&model.User{ID: "a", Handle: "alice"})
	bob := reg.NewSession(&model.User{ID: "b", Handle: "bob"})
	reg.Register(alice)
	reg.Register(bob)

	relay := New(reg, 1024)

	t.Run("Every event is relayed under its outbound name", func(t *testing.T) {
		for inbound, outbound := range Events {
			err := relay.Forward(alice, inbound, json.RawMessage(`{"target":"bob","payload":{"sdp":"v=0"}}`))
			assert.Nil(err)

			select {
			case ev := <-bob.Outbox():
				assert.Equal(outbound, ev.Name)
				relayed := ev.Data.(Relayed)
				assert.JSONEq(`"alice"`, string(relayed["from"]))
				assert.JSONEq(`{"sdp":"v=0"}`, string(relayed["payload"]))
				assert.NotContains(relayed, "target")
			default:
				t.Fatalf("%s not delivered", inbound)
			}
		}
	})

	t.Run("Every field but the target is forwarded", func(t *testing.T) {
		signals := map[string]string{
			"media-change-request": `{"target":"bob","kind":"video"}`,
			"media-track-end":      `{"target":"bob","kind":"audio"}`,
			"call-initiate":        `{"target":"bob","callPayload":{"sdp":"v=0"},"video":true}`,
		}
		expected := map[string]string{
			"media-change-request": `{"from":"alice","kind":"video"}`,
			"media-track-end":      `{"from":"alice","kind":"audio"}`,
			"call-initiate":        `{"from":"alice","callPayload":{"sdp":"v=0"},"video":true}`,
		}

		for inbound, data := range signals {
			assert.Nil(relay.Forward(alice, inbound, json.RawMessage(data)))

			select {
			case ev := <-bob.Outbox():
				body, err := json.Marshal(ev.Data)
				assert.Nil(err)
				assert.JSONEq(expected[inbound], string(body))
			default:
				t.Fatalf("%s not delivered", inbound)
			}
		}
	})

	t.Run("Sender cannot be spoofed", func(t *testing.T) {
		assert.Nil(relay.Forward(alice, "call-end", json.RawMessage(`{"target":"bob","from":"mallory"}`)))

		ev := <-bob.Outbox()
		assert.JSONEq(`"alice"`, string(ev.Data.(Relayed)["from"]))
	})

	t.Run("Offline target is dropped silently", func(t *testing.T) {
		dropped := metrics.Signals.WithLabelValues("call-initiate", metrics.OutcomeDropped)
		before := testutil.ToFloat64(dropped)

		err := relay.Forward(alice, "call-initiate", json.RawMessage(`{"target":"carol","payload":{}}`))
		assert.Nil(err)
		assert.Len(alice.Outbox(), 0)
		assert.Len(bob.Outbox(), 0)
		assert.Equal(before+1, testutil.ToFloat64(dropped))
	})

	t.Run("Malformed signals", func(t *testing.T) {
		assert.ErrorIs(relay.Forward(alice, "call-end", json.RawMessage(`{}`)), model.ErrorMissingTarget)
		assert.ErrorIs(relay.Forward(alice, "call-end", json.RawMessage(`[`)), model.ErrorInvalidPayload)
		assert.ErrorIs(relay.Forward(alice, "call-end", json.RawMessage(`{"target":42}`)), model.ErrorInvalidPayload)
		assert.ErrorIs(relay.Forward(alice, "call-hold", json.RawMessage(`{"target":"bob"}`)), model.ErrorUnknownEvent)

		large := `{"target":"bob","payload":"` + strings.Repeat("x", 2048) + `"}`
		assert.ErrorIs(relay.Forward(alice, "ice-candidate", json.RawMessage(large)), model.ErrorPayloadTooLarge)

		kind := `{"target":"bob","kind":"` + strings.Repeat("v", 2048) + `"}`
		assert.ErrorIs(relay.Forward(alice, "media-change-request", json.RawMessage(kind)), model.ErrorPayloadTooLarge)
		assert.Len(bob.Outbox(), 0)
	})
}
