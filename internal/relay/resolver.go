package relay

import (
	"context"

	"kutter-server/internal/registry"
	"kutter-server/internal/store"
)

// Resolver decides, per outgoing event and per subscriber, whether the
// subscriber is authorized to see it. Chat membership is answered from the
// session's cached set first; a miss falls back to the store, which covers
// chats created after the cache was last refreshed.
type Resolver struct {
	Store    *store.Store
	Registry *registry.Registry
}

func (r *Resolver) chatMember(ctx context.Context, sess *registry.Session, chatID int64) (bool, error) {
	if r.Registry.Contains(sess.Identity, chatID) {
		return true, nil
	}
	return r.Store.IsChatMember(ctx, chatID, sess.Username)
}

// ChatVisible reports whether one chat-domain event may be delivered to sess.
func (r *Resolver) ChatVisible(ctx context.Context, ev ChatEvent, sess *registry.Session) (bool, error) {
	switch e := ev.(type) {
	case NewMessage:
		return r.chatMember(ctx, sess, e.Message.ChatID)
	case EditMessage:
		return r.chatMember(ctx, sess, e.Message.ChatID)
	case DeleteMessage:
		return r.chatMember(ctx, sess, e.ChatID)
	case NewChat:
		return e.Chat.FirstUserName == sess.Username || e.Chat.SecondUserName == sess.Username, nil
	case BioChanged:
		// A bio change is only echoed back to its owner.
		return e.Username == sess.Username, nil
	}
	return false, nil
}

// FriendVisible reports whether one friend-domain event may be delivered
// to sess.
func (r *Resolver) FriendVisible(ctx context.Context, ev FriendEvent, sess *registry.Session) (bool, error) {
	switch e := ev.(type) {
	case FriendRequestSent:
		return e.Friendship.SenderUsername == sess.Username ||
			e.Friendship.ReceiverUsername == sess.Username, nil
	case FriendRequestAccepted:
		// Checked against the row itself: the subscriber must currently be
		// a party of that friendship.
		return r.Store.IsFriendshipParty(ctx, e.ID, sess.Username)
	case FriendRequestCancelled:
		return e.SenderUsername == sess.Username || e.ReceiverUsername == sess.Username, nil
	}
	return false, nil
}
