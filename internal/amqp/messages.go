package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"dompet/internal/blobstore"
)

// ChangeMessage is the wire form of a blobstore change event. It carries only
// the key; receivers read the new contents from the shared storage.
type ChangeMessage struct {
	Key       string    `json:"key"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(ev blobstore.ChangeEvent) *ChangeMessage {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{Key: ev.Key, Origin: ev.Origin, Timestamp: ts}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ChangeMessage) Event() blobstore.ChangeEvent {
	return blobstore.ChangeEvent{Key: m.Key, Origin: m.Origin, At: m.Timestamp}
}

// ChangeMessageFromJSON decodes a message and rejects ones without a key.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Key == "" {
		return nil, errors.New("change message without key")
	}
	return &msg, nil
}
