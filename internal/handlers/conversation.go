package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
)

// ConversationHandler serves the conversation directory and read cursors.
type ConversationHandler struct {
	directory *services.Directory
	ledger    *services.Ledger
	audit     *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(directory *services.Directory, ledger *services.Ledger, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{directory: directory, ledger: ledger, audit: audit}
}

// ListConversations returns the caller's conversations in display order.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	list, err := h.directory.ListForUser(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		writeServiceError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// CreateConversation resolves a direct conversation when peer_id is given and
// creates a group otherwise.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req struct {
		PeerID    int     `json:"peer_id"`
		Title     *string `json:"title"`
		MemberIDs []int   `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if req.PeerID > 0 {
		res, err := h.directory.FindOrCreateDirect(c.Request.Context(), userID, req.PeerID)
		if err != nil {
			writeServiceError(c, err, "could not create conversation")
			return
		}
		h.respondDirect(c, res)
		return
	}

	if len(req.MemberIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer_id or member_ids required"})
		return
	}
	conv, err := h.directory.CreateGroup(c.Request.Context(), userID, req.Title, req.MemberIDs)
	if err != nil {
		writeServiceError(c, err, "could not create group")
		return
	}
	emitAudit(c, h.audit, "INFO", "Group created", conv.ID)
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// CreateConversationByPhone resolves the peer by phone number.
func (h *ConversationHandler) CreateConversationByPhone(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.directory.FindOrCreateDirectByPhone(c.Request.Context(), c.GetInt("userID"), req.Phone)
	if err != nil {
		writeServiceError(c, err, "could not create conversation")
		return
	}
	h.respondDirect(c, res)
}

func (h *ConversationHandler) respondDirect(c *gin.Context, res services.DirectResult) {
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		emitAudit(c, h.audit, "INFO", "Direct conversation created", res.Conversation.ID)
	}
	c.JSON(status, gin.H{
		"conversation_id": res.Conversation.ID,
		"conversation":    res.Conversation,
		"created":         res.Created,
		"peer":            res.Peer,
		"display_name":    res.DisplayName,
	})
}

// DeleteConversation removes the conversation for every participant.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	if err := h.directory.Delete(c.Request.Context(), conversationID, c.GetInt("userID")); err != nil {
		writeServiceError(c, err, "failed to delete conversation")
		return
	}
	emitAudit(c, h.audit, "INFO", "Conversation deleted", conversationID)
	c.Status(http.StatusNoContent)
}

// AddMembers adds users to a group conversation.
func (h *ConversationHandler) AddMembers(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	var req struct {
		MemberIDs []int `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.directory.AddMembers(c.Request.Context(), conversationID, c.GetInt("userID"), req.MemberIDs)
	if err != nil {
		writeServiceError(c, err, "failed to add members")
		return
	}
	emitAudit(c, h.audit, "INFO", "Group members added", conversationID)
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "added": added})
}

// MarkRead advances the caller's read cursor.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	var req struct {
		LastMessageID int64 `json:"last_message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cursor, err := h.ledger.MarkRead(c.Request.Context(), conversationID, c.GetInt("userID"), req.LastMessageID)
	if err != nil {
		writeServiceError(c, err, "failed to mark read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "last_read_message_id": cursor})
}
