package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// MessageHandler serves message history and REST sends.
type MessageHandler struct {
	ledger *services.Ledger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(ledger *services.Ledger) *MessageHandler {
	return &MessageHandler{ledger: ledger}
}

// ListMessages returns one page of history, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	var before int64
	if raw := c.Query("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		before = parsed
	}

	msgs, err := h.ledger.Page(c.Request.Context(), conversationID, c.GetInt("userID"), limit, before)
	if err != nil {
		writeServiceError(c, err, "failed to load messages")
		return
	}

	var nextBefore *int64
	if len(msgs) > 0 && len(msgs) == services.ClampLimit(limit) {
		oldest := msgs[0].ID
		nextBefore = &oldest
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "next_before": nextBefore})
}

// PostMessage stores a message sent over REST and fans it out.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Body        *string            `json:"body"`
		Attachments models.Attachments `json:"attachments"`
		ClientMsgID *string            `json:"client_msg_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.ledger.Send(c.Request.Context(), services.SendInput{
		ConversationID: conversationID,
		SenderID:       c.GetInt("userID"),
		Body:           req.Body,
		Attachments:    req.Attachments,
		ClientMsgID:    req.ClientMsgID,
		Origin:         services.OriginREST,
		Headers:        eventHeaders(c),
	})
	if err != nil {
		writeServiceError(c, err, "failed to send message")
		return
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"message": res.Message, "created": res.Created})
}
