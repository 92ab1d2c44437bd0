package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ClassifyMessage asks the worker to label one stored row. Only the id
// travels; the worker reads the row itself.
type ClassifyMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewClassifyMessage(id string) *ClassifyMessage {
	return &ClassifyMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *ClassifyMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ClassifyMessageFromJSON decodes a message and rejects one without an id.
func ClassifyMessageFromJSON(data []byte) (*ClassifyMessage, error) {
	var msg ClassifyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("classify message without id")
	}
	return &msg, nil
}
