package relay

import (
	"encoding/json"
	"fmt"

	"kutter-server/internal/model"
)

// ChatEvent is one committed mutation in the chat domain. Exactly one
// variant exists per action outcome; encodeChatEvent is the exhaustive
// serialization point.
type ChatEvent interface{ chatEvent() }

type NewMessage struct{ Message model.Message }

type EditMessage struct{ Message model.Message }

// DeleteMessage carries only the id on the wire; ChatID stays internal so
// the resolver can gate delivery by membership.
type DeleteMessage struct {
	MessageID int64 `json:"message_id"`
	ChatID    int64 `json:"-"`
}

type NewChat struct{ Chat model.Chat }

type BioChanged struct {
	Username  string `json:"username"`
	Biography string `json:"biography"`
}

func (NewMessage) chatEvent()    {}
func (EditMessage) chatEvent()   {}
func (DeleteMessage) chatEvent() {}
func (NewChat) chatEvent()       {}
func (BioChanged) chatEvent()    {}

// FriendEvent is one committed mutation in the friend domain.
type FriendEvent interface{ friendEvent() }

type FriendRequestSent struct{ Friendship model.Friendship }

type FriendRequestAccepted struct {
	ID               int64  `json:"id"`
	SenderUsername   string `json:"sender_username"`
	ReceiverUsername string `json:"receiver_username"`
	Status           string `json:"status"`
}

// FriendRequestCancelled carries only the id on the wire; the parties stay
// internal for the visibility check.
type FriendRequestCancelled struct {
	ID               int64  `json:"id"`
	SenderUsername   string `json:"-"`
	ReceiverUsername string `json:"-"`
}

func (FriendRequestSent) friendEvent()      {}
func (FriendRequestAccepted) friendEvent()  {}
func (FriendRequestCancelled) friendEvent() {}

func encodeChatEvent(ev ChatEvent) ([]byte, error) {
	switch e := ev.(type) {
	case NewMessage:
		return json.Marshal(struct {
			Action string `json:"action"`
			model.Message
		}{Action: "new_message", Message: e.Message})
	case EditMessage:
		return json.Marshal(struct {
			Action string `json:"action"`
			model.Message
		}{Action: "edit_message", Message: e.Message})
	case DeleteMessage:
		return json.Marshal(struct {
			Action string `json:"action"`
			DeleteMessage
		}{Action: "delete_message", DeleteMessage: e})
	case NewChat:
		return json.Marshal(struct {
			Action string `json:"action"`
			model.Chat
		}{Action: "new_chat", Chat: e.Chat})
	case BioChanged:
		return json.Marshal(struct {
			Action string `json:"action"`
			BioChanged
		}{Action: "bio_changed", BioChanged: e})
	}
	return nil, fmt.Errorf("unknown chat event %T", ev)
}

func encodeFriendEvent(ev FriendEvent) ([]byte, error) {
	switch e := ev.(type) {
	case FriendRequestSent:
		return json.Marshal(struct {
			Action string `json:"action"`
			model.Friendship
		}{Action: "friend_request_sent", Friendship: e.Friendship})
	case FriendRequestAccepted:
		return json.Marshal(struct {
			Action string `json:"action"`
			FriendRequestAccepted
		}{Action: "friend_request_accepted", FriendRequestAccepted: e})
	case FriendRequestCancelled:
		return json.Marshal(struct {
			Action string `json:"action"`
			FriendRequestCancelled
		}{Action: "friend_request_cancelled", FriendRequestCancelled: e})
	}
	return nil, fmt.Errorf("unknown friend event %T", ev)
}
