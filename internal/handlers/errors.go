package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/media"
	"messaging-service/internal/services"
)

// writeServiceError maps service sentinel errors to HTTP responses. Unknown
// errors are logged and answered with 500 and the fallback message.
func writeServiceError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrPeerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidMessage),
		errors.Is(err, services.ErrSelfConversation),
		errors.Is(err, services.ErrInvalidPhone),
		errors.Is(err, services.ErrNotAGroup):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrAlreadyFavorite):
		status = http.StatusConflict
	case errors.Is(err, media.ErrUnsupportedMedia):
		status = http.StatusUnsupportedMediaType
	}

	if status == http.StatusInternalServerError {
		log.Printf("request failed: method=%s path=%s user_id=%d err=%v", c.Request.Method, c.FullPath(), c.GetInt("userID"), err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func conversationIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}
