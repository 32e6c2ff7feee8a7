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
	"kutter-server/internal/model"
	"kutter-server/internal/registry"
	"kutter-server/internal/store"
)

const friendDomain = "friend"

// FriendBusCapacity bounds each friend subscriber's queue. Friend events
// are low-volume, so the queue is deliberately small.
const FriendBusCapacity = 20

// FriendRelay serves the friend-request websocket. It mirrors ChatRelay's
// structure with its own registry and bus.
type FriendRelay struct {
	Store       *store.Store
	Registry    *registry.Registry
	Bus         *bus.Bus[FriendEvent]
	Resolver    *Resolver
	TokenConfig auth.TokenConfig
	Metrics     *metrics.Metrics
}

func (r *FriendRelay) Serve(c *gin.Context) {
	claims, ok := claimsFromRequest(c, r.TokenConfig)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	ctx := c.Request.Context()

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
	if displaced := r.Registry.Register(sess, nil); displaced != nil {
		_ = displaced.Outbound.Close()
	}
	sub := r.Bus.Subscribe()

	r.Metrics.ConnectionsTotal.WithLabelValues(friendDomain).Inc()
	r.Metrics.ActiveConnections.WithLabelValues(friendDomain).Inc()
	log := slog.With("domain", friendDomain, "conn_id", sess.ConnID, "user", claims.Username)
	log.Info("session registered")

	go r.outbound(sess, sub, conn, log)
	r.inbound(ctx, sess, conn, log)

	r.Registry.Remove(sess.Identity, sess)
	sub.Cancel()
	_ = conn.Close()
	r.Metrics.ActiveConnections.WithLabelValues(friendDomain).Dec()
	log.Info("session closed")
}

func (r *FriendRelay) inbound(ctx context.Context, sess *registry.Session, conn *wsConn, log *slog.Logger) {
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
		case "send_request":
			r.handleSendRequest(ctx, sess, conn, env.Payload, log)
		case "accept":
			r.handleAccept(ctx, sess, conn, env.Payload, log)
		case "cancel":
			r.handleCancel(ctx, sess, conn, env.Payload, log)
		default:
			log.Debug("unknown action", "action", env.Action)
			conn.writeError("unknown action: " + env.Action)
		}
	}
}

func (r *FriendRelay) outbound(sess *registry.Session, sub *bus.Subscription[FriendEvent], conn *wsConn, log *slog.Logger) {
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
			visible, err := r.Resolver.FriendVisible(ctx, ev, sess)
			if err != nil {
				log.Error("resolving visibility", "err", err)
				continue
			}
			if !visible {
				continue
			}
			frame, err := encodeFriendEvent(ev)
			if err != nil {
				log.Error("encoding event", "err", err)
				continue
			}
			if err := conn.Write(frame); err != nil {
				r.Registry.Remove(sess.Identity, sess)
				_ = conn.Close()
				return
			}
			r.Metrics.EventsDelivered.WithLabelValues(friendDomain).Inc()
		case <-ticker.C:
			if !r.Registry.Owns(sess.Identity, sess) {
				return
			}
		}
	}
}

func (r *FriendRelay) publish(ev FriendEvent) {
	dropped := r.Bus.Publish(ev)
	r.Metrics.EventsPublished.WithLabelValues(friendDomain).Inc()
	if dropped > 0 {
		r.Metrics.EventsDropped.WithLabelValues(friendDomain).Add(float64(dropped))
	}
}

func (r *FriendRelay) handleSendRequest(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		ReceiverUsername string `json:"receiver_username"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.ReceiverUsername == "" {
		conn.writeError("invalid send_request payload")
		return
	}

	if p.ReceiverUsername == sess.Username {
		conn.writeError("cannot send friend request to yourself")
		return
	}

	exists, err := r.Store.UserExists(ctx, p.ReceiverUsername)
	if err != nil {
		log.Error("checking receiver", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to check friend request")
		return
	}
	if !exists {
		conn.writeError("user not found")
		return
	}

	// Any row between the pair blocks a new request, in either direction
	// and regardless of status.
	already, err := r.Store.FriendshipExists(ctx, sess.Username, p.ReceiverUsername)
	if err != nil {
		log.Error("checking existing friendship", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to check friend request")
		return
	}
	if already {
		conn.writeError("friend request already sent or received")
		return
	}

	friendship, err := r.Store.CreateFriendRequest(ctx, sess.Username, p.ReceiverUsername)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost the race against a simultaneous request for the same pair;
		// the schema's pair uniqueness is the authoritative check.
		conn.writeError("friend request already sent or received")
		return
	}
	if err != nil {
		log.Error("creating friend request", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to create friend request")
		return
	}

	r.publish(FriendRequestSent{Friendship: friendship})
}

func (r *FriendRelay) handleAccept(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		FriendID int64 `json:"friend_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.FriendID == 0 {
		conn.writeError("invalid accept payload")
		return
	}

	friendship, err := r.Store.FriendshipByID(ctx, p.FriendID)
	if errors.Is(err, store.ErrNotFound) {
		conn.writeError("friend request not found")
		return
	}
	if err != nil {
		log.Error("fetching friend request", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to fetch friend request")
		return
	}

	if friendship.ReceiverUsername != sess.Username {
		conn.writeError("only the receiver can accept a friend request")
		return
	}

	if err := r.Store.AcceptFriendRequest(ctx, p.FriendID); err != nil {
		log.Error("accepting friend request", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to accept friend request")
		return
	}

	r.publish(FriendRequestAccepted{
		ID:               friendship.ID,
		SenderUsername:   friendship.SenderUsername,
		ReceiverUsername: friendship.ReceiverUsername,
		Status:           model.FriendStatusAccepted,
	})
}

func (r *FriendRelay) handleCancel(ctx context.Context, sess *registry.Session, conn *wsConn, payload json.RawMessage, log *slog.Logger) {
	var p struct {
		FriendRequestID int64 `json:"friend_request_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.FriendRequestID == 0 {
		conn.writeError("invalid cancel payload")
		return
	}

	friendship, err := r.Store.FriendshipByID(ctx, p.FriendRequestID)
	if errors.Is(err, store.ErrNotFound) {
		conn.writeError("friend request not found")
		return
	}
	if err != nil {
		log.Error("fetching friend request", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to fetch friend request")
		return
	}

	if friendship.SenderUsername != sess.Username && friendship.ReceiverUsername != sess.Username {
		conn.writeError("you are not part of this friend request")
		return
	}

	if err := r.Store.DeleteFriendship(ctx, p.FriendRequestID); err != nil {
		log.Error("deleting friendship", "err", err)
		r.Metrics.ErrorsTotal.WithLabelValues("persistence").Inc()
		conn.writeError("failed to cancel friend request")
		return
	}

	r.publish(FriendRequestCancelled{
		ID:               friendship.ID,
		SenderUsername:   friendship.SenderUsername,
		ReceiverUsername: friendship.ReceiverUsername,
	})
}
