// Package event defines the realtime notifications the services emit after a
// write commits, and the topics the WebSocket gateway fans them out to.
package event

import (
	"context"
	"fmt"
)

const (
	NameMessageNew           = "message.new"
	NameSessionCreated       = "session.created"
	NameSessionNurseAssigned = "session.nurseAssigned"
	NameSessionNurseRemoved  = "session.nurseRemoved"
	NameDiscussionMessageNew = "discussion.message.new"
	NameRoomLeft             = "room.left"
)

// NamespaceChat limits a subscription change to sockets on the chat
// namespace. Empty means every socket of the user.
const NamespaceChat = "chat"

type Event struct {
	Name       string       `json:"name"`
	Topics     []string     `json:"topics"`
	Payload    any          `json:"payload"`
	Membership []Membership `json:"membership,omitempty"`
}

// Membership moves every socket a user has open on or off a topic. Gateways
// apply it before delivering the event, so a revoked socket never sees
// traffic that follows the change.
type Membership struct {
	UserID    uint   `json:"user_id"`
	Topic     string `json:"topic"`
	Namespace string `json:"namespace,omitempty"`
	Join      bool   `json:"join"`
}

func Join(userID uint, topic, namespace string) Membership {
	return Membership{UserID: userID, Topic: topic, Namespace: namespace, Join: true}
}

func Leave(userID uint, topic string) Membership {
	return Membership{UserID: userID, Topic: topic}
}

// Publisher delivers an event to every subscriber of its topics. Delivery is
// best effort: callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

func UserTopic(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

func SessionTopic(sessionID uint) string {
	return fmt.Sprintf("chat:session:%d", sessionID)
}

func RoomTopic(roomID uint) string {
	return fmt.Sprintf("discussion:room:%d", roomID)
}
