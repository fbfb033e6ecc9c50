package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/services"
)

// FavoriteHandler serves conversation bookmarks.
type FavoriteHandler struct {
	directory *services.Directory
}

// NewFavoriteHandler builds a FavoriteHandler.
func NewFavoriteHandler(directory *services.Directory) *FavoriteHandler {
	return &FavoriteHandler{directory: directory}
}

// ListFavorites returns the favorited conversation ids, newest first.
func (h *FavoriteHandler) ListFavorites(c *gin.Context) {
	ids, err := h.directory.ListFavorites(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		writeServiceError(c, err, "failed to load favorites")
		return
	}
	if ids == nil {
		ids = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"conversation_ids": ids})
}

// AddFavorite bookmarks a conversation.
func (h *FavoriteHandler) AddFavorite(c *gin.Context) {
	var req struct {
		ConversationID int `json:"conversation_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.directory.AddFavorite(c.Request.Context(), c.GetInt("userID"), req.ConversationID); err != nil {
		writeServiceError(c, err, "failed to add favorite")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation_id": req.ConversationID, "favorited": true})
}

// ToggleFavorite flips the bookmark.
func (h *FavoriteHandler) ToggleFavorite(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	favorited, err := h.directory.ToggleFavorite(c.Request.Context(), c.GetInt("userID"), conversationID)
	if err != nil {
		writeServiceError(c, err, "failed to toggle favorite")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "favorited": favorited})
}

// RemoveFavorite deletes the bookmark.
func (h *FavoriteHandler) RemoveFavorite(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	if err := h.directory.RemoveFavorite(c.Request.Context(), c.GetInt("userID"), conversationID); err != nil {
		writeServiceError(c, err, "failed to remove favorite")
		return
	}
	c.Status(http.StatusNoContent)
}
