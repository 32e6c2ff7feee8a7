package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"kutter-server/internal/middleware"
	"kutter-server/internal/store"
)

type FriendHandler struct {
	Store *store.Store
}

// ListRequests returns every friendship row the caller is a party to,
// pending and accepted alike.
func (h *FriendHandler) ListRequests(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	friendships, err := h.Store.FriendshipsForUser(c.Request.Context(), claims.Username)
	if err != nil {
		slog.Error("listing friendships", "username", claims.Username, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list friend requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "friend_requests": friendships})
}
