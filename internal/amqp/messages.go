package amqp

import (
	"encoding/json"
	"time"
)

// InboundMessage is the wire form of one delivered text message.
type InboundMessage struct {
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

func NewInboundMessage(sender, body string) *InboundMessage {
	return &InboundMessage{
		Sender:     sender,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *InboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InboundMessageFromJSON creates a message from JSON bytes.
func InboundMessageFromJSON(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
