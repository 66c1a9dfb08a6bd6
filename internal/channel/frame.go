// Package channel is the push channel: a websocket carrying named JSON
// frames from the API to every connected client.
package channel

import (
	"encoding/json"
	"time"
)

// Frame is one push notification on the wire: {"event": name, "data": payload}
type Frame struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"-"`
}

// EncodeFrame renders a frame for sending
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Handler receives frames for one event name. Handlers run on the read
// goroutine in delivery order and must return promptly.
type Handler func(Frame)

// State is the connection state of the push channel
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}
