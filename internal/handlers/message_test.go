package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func setupMessageRouter(d *deps) *gin.Engine {
	handler := NewMessageHandler(d.ledger)
	r := newTestRouter(1)
	r.GET("/conversations/:conversation_id/messages", handler.ListMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	return r
}

func TestListMessagesAscendingWithCursor(t *testing.T) {
	d := newDeps()
	router := setupMessageRouter(d)
	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(true, nil).Once()
	d.msgRepo.On("ListMessages", mock.Anything, 4, int64(100), 2).Return([]models.Message{{ID: 99}, {ID: 98}}, nil).Once()

	rec := doJSON(router, http.MethodGet, "/conversations/4/messages?limit=2&before=100", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages   []models.Message `json:"messages"`
		NextBefore *int64           `json:"next_before"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, int64(98), resp.Messages[0].ID)
	assert.Equal(t, int64(99), resp.Messages[1].ID)
	require.NotNil(t, resp.NextBefore)
	assert.Equal(t, int64(98), *resp.NextBefore)
}

func TestListMessagesRejectsBadCursor(t *testing.T) {
	d := newDeps()
	router := setupMessageRouter(d)

	rec := doJSON(router, http.MethodGet, "/conversations/4/messages?before=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessagesMissingConversation(t *testing.T) {
	d := newDeps()
	router := setupMessageRouter(d)
	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(false, nil).Once()
	d.convRepo.On("GetConversation", mock.Anything, 4).Return(nil, repositories.ErrConversationNotFound).Once()

	rec := doJSON(router, http.MethodGet, "/conversations/4/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessageCreatesAndFansOut(t *testing.T) {
	d := newDeps()
	router := setupMessageRouter(d)
	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(true, nil).Once()
	d.msgRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.SenderID == 1 && *in.Body == "hello"
	})).Return(models.Message{ID: 7, ConversationID: 4, SenderID: 1, Body: strPtr("hello")}, true, nil).Once()
	d.convRepo.On("ListParticipantIDs", mock.Anything, 4).Return([]int{1, 2}, nil).Once()

	rec := doJSON(router, http.MethodPost, "/conversations/4/messages", `{"body":"hello"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, d.fanout.rooms, "conv:4")
	assert.Contains(t, d.fanout.rooms, "user:2")
	d.msgRepo.AssertExpectations(t)
}

func TestPostMessageEmptyBody(t *testing.T) {
	d := newDeps()
	router := setupMessageRouter(d)

	rec := doJSON(router, http.MethodPost, "/conversations/4/messages", `{"body":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	d.msgRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestPostMessageDuplicateClientMsgID(t *testing.T) {
	d := newDeps()
	router := setupMessageRouter(d)
	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(true, nil).Once()
	d.msgRepo.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{ID: 7, ConversationID: 4}, false, nil).Once()

	rec := doJSON(router, http.MethodPost, "/conversations/4/messages", `{"body":"hello","client_msg_id":"c-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, d.fanout.events)
}
