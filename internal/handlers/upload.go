package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/media"
	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// UploadHandler stores chat media and posts it as one message.
type UploadHandler struct {
	ledger   *services.Ledger
	store    media.Store
	maxFiles int
	maxBytes int64
}

// NewUploadHandler builds an UploadHandler.
func NewUploadHandler(ledger *services.Ledger, store media.Store, maxFiles int, maxBytes int64) *UploadHandler {
	return &UploadHandler{ledger: ledger, store: store, maxFiles: maxFiles, maxBytes: maxBytes}
}

// Upload accepts multipart "files" (plus an optional "body" caption) and sends
// a single message carrying every file as an attachment.
func (h *UploadHandler) Upload(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	// membership is checked before any byte reaches the disk
	if err := h.ledger.Authorize(c.Request.Context(), conversationID, userID); err != nil {
		writeServiceError(c, err, "failed to verify membership")
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}
	if h.maxFiles > 0 && len(files) > h.maxFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d files per upload", h.maxFiles)})
		return
	}

	attachments := make(models.Attachments, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.discard(attachments)
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}
		att, err := h.store.Save(fh.Filename, fh.Size, f)
		f.Close()
		if err != nil {
			h.discard(attachments)
			writeServiceError(c, err, "failed to store file")
			return
		}
		attachments = append(attachments, att)
	}

	var body *string
	if caption := strings.TrimSpace(c.PostForm("body")); caption != "" {
		body = &caption
	}
	var clientMsgID *string
	if id := strings.TrimSpace(c.PostForm("client_msg_id")); id != "" {
		clientMsgID = &id
	}

	res, err := h.ledger.Send(c.Request.Context(), services.SendInput{
		ConversationID: conversationID,
		SenderID:       userID,
		Body:           body,
		Attachments:    attachments,
		ClientMsgID:    clientMsgID,
		Origin:         services.OriginUpload,
		Headers:        eventHeaders(c),
	})
	if err != nil {
		h.discard(attachments)
		writeServiceError(c, err, "failed to send message")
		return
	}
	if !res.Created {
		// an earlier upload with the same client_msg_id already owns its files
		h.discard(attachments)
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "files": res.Message.Attachments, "message": res.Message})
}

func (h *UploadHandler) discard(attachments models.Attachments) {
	for _, att := range attachments {
		if err := h.store.Remove(att); err != nil {
			log.Printf("upload cleanup failed: url=%s err=%v", att.URL, err)
		}
	}
}
