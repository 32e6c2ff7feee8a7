package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kutter-server/internal/middleware"
	"kutter-server/internal/store"
)

type ChatHandler struct {
	Store *store.Store
}

// ListChats returns the caller's chats, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	chats, err := h.Store.ChatsForUser(c.Request.Context(), claims.Username)
	if err != nil {
		slog.Error("listing chats", "username", claims.Username, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "chats": chats})
}

// Messages returns the full history of one chat. Non-members get 403.
func (h *ChatHandler) Messages(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	member, err := h.Store.IsChatMember(c.Request.Context(), chatID, claims.Username)
	if err != nil {
		slog.Error("checking chat membership", "chat_id", chatID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this chat"})
		return
	}

	messages, err := h.Store.MessagesForChat(c.Request.Context(), chatID)
	if err != nil {
		slog.Error("listing messages", "chat_id", chatID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "messages": messages})
}
