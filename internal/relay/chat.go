package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kutter-server/internal/auth"
	"kutter-server/internal/bus"
	"kutter-server/internal/metrics"
	"kutter-server/internal/registry"
	"kutter-server/internal/store"
)

const chatDomain = "chat"

// ChatBusCapacity bounds each chat subscriber's queue.
const ChatBusCapacity = 1000

// ChatRelay serves the chat-domain websocket: one inbound loop parsing
// client commands and one outbound loop draining this connection's bus
// subscription through the membership resolver.
type ChatRelay struct {
	Store       *store.Store
	Registry    *registry.Registry
	Bus         *bus.Bus[ChatEvent]
	Resolver    *Resolver
	TokenConfig auth.TokenConfig
	Metrics     *metrics.Metrics
}

func (r *ChatRelay) Serve(c *gin.Context) {
	claims, ok := claimsFromRequest(c, r.TokenConfig)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	ctx := c.Request.Context()

	chatIDs, err := r.Store.ChatIDsForUser(ctx, claims.Username)
	if err != nil {
		slog.Error("loading chat membership", "user", claims.Username, "err", err)
		chatIDs = nil
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := newWSConn(ws)

	sess := &registry.Session{
		ConnID:   uuid.NewString(),
		Identity: claims.Email,
		Username: claims.Username,
		Outbound: conn,
	}
	if displaced := r.Registry.Register(sess, chatIDs); displaced != nil {
		// A reconnect for the same identity evicts the old socket; its
		// loops observe the eviction and exit.
		_ = displaced.Outbound.Close()
	}
	sub := r.Bus.Subscribe()

	r.Metrics.ConnectionsTotal.WithLabelValues(chatDomain).Inc()
	r.Metrics.ActiveConnections.WithLabelValues(chatDomain).Inc()
	log := slog.With("domain", chatDomain, "conn_id", sess.ConnID, "user", claims.Username)
	log.Info("session registered")

	go r.outbound(sess, sub, conn, log)
	r.inbound(ctx, sess, conn, log)

	r.Registry.Remove(sess.Identity, sess)
	sub.Cancel()
	_ = conn.Close()
	r.Metrics.ActiveConnections.WithLabelValues(chatDomain).Dec()
	log.Info("session closed")
}

// inbound reads one frame at a time and fully processes it before the next
// read. Validation and authorization failures answer the caller only.
func (r *ChatRelay) inbound(ctx context.Context, sess *registry.Session, conn *wsConn, log *slog.Logger) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			conn.writeError("invalid message")
			continue
		}

		switch env.Action {
		case "new_message":
			r.handleNewMessage(ctx, sess, conn, env.Payload, log)
		case "edit_message":
			r.handleEditMessage(ctx, sess, conn, env.Payload, log)
		case "delete_message":
			r.handleDeleteMessage(ctx, sess, conn, env.Payload, log)
		case "new_chat":
			r.handleNewChat(ctx, sess, conn, env.Payload, log)
		case "change_bio":
			r.handleChangeBio(ctx, sess, conn, env.Payload, log)
		default:
			log.Debug("unknown action", "action", env.Action)
			conn.writeError("unknown action: " + env.Action)
		}
	}
}

// outbound drains this connection's subscription, racing it against the
// liveness watchdog tick. Up to one tick may pass between session removal
// and loop termination.
func (r *ChatRelay) outbound(sess *registry.Session, sub *bus.Subscription[ChatEvent], conn *wsConn, log *slog.Logger) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if !r.Registry.Owns(sess.Identity, sess) {
				return
			}
			visible, err := r.Resolver.ChatVisible(ctx, ev, sess)
			if err != nil {
				log.Error("resolving visibility", "err", err)
				continue
			}
			if !visible {
				continue
			}
			frame, err := encodeChatEvent(ev)
			if err != nil {
				log.Error("encoding event", "err", err)
				continue
			}
			if err := conn.Write(frame); err != nil {
				r.Registry.Remove(sess.Identity, sess)
				_ = conn.Close()
				return
			}
			r.Metrics.EventsDelivered.WithLabelValues(chatDomain).Inc()
		case <-ticker.C:
			if !r.Registry.Owns(sess.Identity, sess) {
				return
			}
		}
	}
}

func (r *ChatRelay) publish(ev ChatEvent) {
	dropped := r.Bus.Publish(ev)
	r.Metrics.EventsPublished.WithLabelValues(chatDomain).Inc()
	if dropped > 0 {
		r.Metrics.EventsDropped.WithLabelValues(chatDomain).Add(float64(dropped))
	}
}

func (r *ChatRelay) handleNewMessage(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		Message     string `json:"message"`
		ChatPartner string `json:"chat_partner"`
		Reply       *int64 `json:"reply"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.Message == "" || p.ChatPartner == "" {
		conn.writeError("invalid new_message payload")
		return
	}

	now := time.Now().UnixMilli()

	// The chat is created lazily on first message.
	chatID, err := r.Store.ChatIDForPair(ctx, sess.Username, p.ChatPartner)
	if errors.Is(err, store.ErrNotFound) {
		chat, createErr := r.Store.CreateChat(ctx, sess.Username, p.ChatPartner, now)
		if createErr != nil {
			log.Error("creating chat", "err", createErr)
			r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
			conn.writeError("failed to create chat")
			return
		}
		chatID = chat.ID
	} else if err != nil {
		log.Error("resolving chat", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to resolve chat")
		return
	}

	var repliedUser, repliedText *string
	if p.Reply != nil {
		replied, err := r.Store.MessageByID(ctx, *p.Reply)
		if errors.Is(err, store.ErrNotFound) {
			conn.writeError("replied message not found")
			return
		}
		if err != nil {
			log.Error("fetching replied message", "err", err)
			r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
			conn.writeError("failed to fetch replied message")
			return
		}
		if replied.ChatID != chatID {
			conn.writeError("cannot reply to a message from another chat")
			return
		}
		repliedUser = &replied.Username
		repliedText = &replied.Message
	}

	msg, err := r.Store.InsertMessage(ctx, chatID, sess.Identity, sess.Username, p.Message, repliedUser, repliedText, now)
	if err != nil {
		log.Error("inserting message", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to send message")
		return
	}
	if err := r.Store.TouchChat(ctx, chatID, now); err != nil {
		log.Error("updating chat last_update", "err", err)
	}

	r.publish(NewMessage{Message: msg})
}

func (r *ChatRelay) handleEditMessage(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		MessageID int64  `json:"message_id"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageID == 0 || p.Message == "" {
		conn.writeError("invalid edit_message payload")
		return
	}

	msg, err := r.Store.MessageByID(ctx, p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		conn.writeError("message not found")
		return
	}
	if err != nil {
		log.Error("fetching message", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to fetch message")
		return
	}
	if msg.Email != sess.Identity {
		conn.writeError("you can only edit your own messages")
		return
	}

	if err := r.Store.UpdateMessageText(ctx, p.MessageID, p.Message); err != nil {
		log.Error("updating message", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to edit message")
		return
	}

	updated, err := r.Store.MessageByID(ctx, p.MessageID)
	if err != nil {
		log.Error("re-fetching message", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		return
	}

	r.publish(EditMessage{Message: updated})
}

func (r *ChatRelay) handleDeleteMessage(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.ID == 0 {
		conn.writeError("invalid delete_message payload")
		return
	}

	msg, err := r.Store.MessageByID(ctx, p.ID)
	if errors.Is(err, store.ErrNotFound) {
		conn.writeError("message not found")
		return
	}
	if err != nil {
		log.Error("fetching message", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to fetch message")
		return
	}
	if msg.Email != sess.Identity {
		conn.writeError("you can only delete your own messages")
		return
	}

	if err := r.Store.DeleteMessage(ctx, p.ID); err != nil {
		log.Error("deleting message", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to delete message")
		return
	}

	r.publish(DeleteMessage{MessageID: msg.ID, ChatID: msg.ChatID})
}

func (r *ChatRelay) handleNewChat(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		SecondUserName string `json:"second_user_name"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.SecondUserName == "" {
		conn.writeError("invalid new_chat payload")
		return
	}

	// Any friendship row between the pair (pending or accepted) allows a chat.
	friends, err := r.Store.FriendshipExists(ctx, sess.Username, p.SecondUserName)
	if err != nil {
		log.Error("checking friendship", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to check friendship")
		return
	}
	if !friends {
		conn.writeError("you can only start chats with your friends")
		return
	}

	if _, err := r.Store.ChatIDForPair(ctx, sess.Username, p.SecondUserName); err == nil {
		conn.writeError("chat already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error("checking existing chat", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to check existing chat")
		return
	}

	chat, err := r.Store.CreateChat(ctx, sess.Username, p.SecondUserName, time.Now().UnixMilli())
	if err != nil {
		log.Error("creating chat", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to create chat")
		return
	}

	// Refresh both participants' cached membership so the new chat is
	// visible without waiting for the resolver's store fallback.
	for _, username := range []string{chat.FirstUserName, chat.SecondUserName} {
		ids, err := r.Store.ChatIDsForUser(ctx, username)
		if err != nil {
			log.Error("refreshing membership", "member", username, "err", err)
			continue
		}
		r.Registry.UpdateMembership(username, ids)
	}

	r.publish(NewChat{Chat: chat})
}

func (r *ChatRelay) handleChangeBio(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		Biography string `json:"biography"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		conn.writeError("invalid change_bio payload")
		return
	}

	if err := r.Store.UpdateBiography(ctx, sess.Username, p.Biography); err != nil {
		log.Error("updating biography", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to update biography")
		return
	}

	r.publish(BioChanged{Username: sess.Username, Biography: p.Biography})
}
