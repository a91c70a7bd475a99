// Package protocol defines the JSON frames exchanged over the queue
// WebSocket. Every frame is an object with a "type" discriminator; frames
// of unknown type decode to Unknown so that either side can ignore them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

type MessageType string

const (
	TypeAuth        MessageType = "auth"
	TypeQueueUpdate MessageType = "queue_update"
	TypeAIChat      MessageType = "ai_chat"
)

// Message is implemented by every decoded frame.
type Message interface {
	MessageType() MessageType
}

// Auth is sent by a client to tag its connection with a user id.
type Auth struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
}

func (Auth) MessageType() MessageType { return TypeAuth }

type BusinessStatus struct {
	IsOpen       bool   `json:"isOpen"`
	Message      string `json:"message"`
	NextOpenTime string `json:"nextOpenTime,omitempty"`
}

// Snapshot is the queue state carried by queue_update frames and returned
// by GET /queue/status.
type Snapshot struct {
	Count          int            `json:"count"`
	EstimatedWait  string         `json:"estimatedWait"`
	BusinessStatus BusinessStatus `json:"businessStatus"`
	LastUpdate     time.Time      `json:"lastUpdate"`
}

// QueueUpdate flattens the snapshot fields next to "type".
type QueueUpdate struct {
	Type MessageType `json:"type"`
	Snapshot
}

func (QueueUpdate) MessageType() MessageType { return TypeQueueUpdate }

// AIChat relays one chat message to the connections tagged with its user.
type AIChat struct {
	Type       MessageType `json:"type"`
	Message    string      `json:"message"`
	IsFromUser bool        `json:"isFromUser"`
}

func (AIChat) MessageType() MessageType { return TypeAIChat }

// Unknown is any well-formed frame whose type this version does not know.
type Unknown struct {
	Type MessageType
}

func (u Unknown) MessageType() MessageType { return u.Type }

func NewAuth(userID string) Auth {
	return Auth{Type: TypeAuth, UserID: userID}
}

func NewQueueUpdate(s Snapshot) QueueUpdate {
	return QueueUpdate{Type: TypeQueueUpdate, Snapshot: s}
}

func NewAIChat(message string, isFromUser bool) AIChat {
	return AIChat{Type: TypeAIChat, Message: message, IsFromUser: isFromUser}
}

// Decode parses a frame. Extra fields are ignored. Only malformed JSON,
// a non-object payload or a known type with mistyped fields is an error.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var (
		msg Message
		err error
	)
	switch envelope.Type {
	case TypeAuth:
		var m Auth
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeQueueUpdate:
		var m QueueUpdate
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeAIChat:
		var m AIChat
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return Unknown{Type: envelope.Type}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", envelope.Type, err)
	}
	return msg, nil
}

// Encode marshals a frame.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
