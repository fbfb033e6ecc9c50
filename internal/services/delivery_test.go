package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

type emission struct {
	room   string
	event  models.SocketEvent
	except string
}

type recordingFanout struct {
	mu    sync.Mutex
	sent  []emission
	count int
}

func (f *recordingFanout) EmitToRoom(room string, event models.SocketEvent, exceptSessionID string) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, emission{room: room, event: event, except: exceptSessionID})
	return f.count, 0
}

func (f *recordingFanout) byRoom(room, event string) []emission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emission
	for _, e := range f.sent {
		if e.room == room && e.event.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestFlattenMessageTextAndAttachments(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := models.Message{
		ID:             42,
		ConversationID: 7,
		SenderID:       1,
		Body:           strPtr("hello"),
		Attachments: models.Attachments{
			{Type: models.AttachmentImage, URL: "http://x/a.jpg", Name: "a.jpg", Size: 10, Mime: "image/jpeg"},
			{Type: models.AttachmentVideo, URL: "http://x/b.mp4", Name: "b.mp4", Size: 20, Mime: "video/mp4"},
		},
		CreatedAt: created,
	}

	items := FlattenMessage(msg)
	require.Len(t, items, 3)
	assert.Equal(t, "text", items[0].Type)
	assert.Equal(t, "hello", items[0].Text)
	assert.Equal(t, "image", items[1].Type)
	assert.Equal(t, "http://x/a.jpg", items[1].URL)
	assert.Equal(t, "video", items[2].Type)
	for _, item := range items {
		assert.Equal(t, int64(42), item.ID)
		assert.Equal(t, 7, item.ConversationID)
		assert.Equal(t, "2026-03-01T10:00:00Z", item.CreatedAt)
	}
}

func TestFlattenMessageAttachmentsOnly(t *testing.T) {
	msg := models.Message{
		ID:          1,
		Attachments: models.Attachments{{Type: models.AttachmentFile, URL: "u"}},
	}
	items := FlattenMessage(msg)
	require.Len(t, items, 1)
	assert.Equal(t, "file", items[0].Type)
}

func TestMessageStoredEmitsToConversationAndParticipantRooms(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	pub := new(mocks.PublisherMock)
	fanout := &recordingFanout{count: 1}
	delivery := NewDelivery(fanout, convRepo, observability.NewEventBus(pub, "messaging-service"))

	msg := models.Message{
		ID:             5,
		ConversationID: 9,
		SenderID:       1,
		Attachments: models.Attachments{
			{Type: models.AttachmentImage, URL: "u1"},
			{Type: models.AttachmentImage, URL: "u2"},
		},
	}
	convRepo.On("ListParticipantIDs", mock.Anything, 9).Return([]int{1, 2, 3}, nil).Once()
	pub.On("Publish", mock.Anything, RoutingKeyMessageCreated, mock.Anything, mock.Anything).Return(nil).Once()

	delivery.MessageStored(context.Background(), msg, nil)

	assert.Len(t, fanout.byRoom("conv:9", models.EventMessageCreated), 2)
	assert.Len(t, fanout.byRoom("conv:9", models.EventMessageNew), 1)
	for _, uid := range []int{1, 2, 3} {
		news := fanout.byRoom(models.UserRoom(uid), models.EventMessageNew)
		require.Len(t, news, 1)
		payload := news[0].event.Data.(models.MessageNewEvent)
		assert.Equal(t, int64(5), payload.Message.ID)
	}
	convRepo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestMessageStoredSurvivesParticipantLookupFailure(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	fanout := &recordingFanout{}
	delivery := NewDelivery(fanout, convRepo, nil)

	convRepo.On("ListParticipantIDs", mock.Anything, 3).Return(nil, errors.New("db down")).Once()

	assert.NotPanics(t, func() {
		delivery.MessageStored(context.Background(), models.Message{ID: 1, ConversationID: 3, Body: strPtr("x")}, nil)
	})
	assert.Len(t, fanout.byRoom("conv:3", models.EventMessageCreated), 1)
	assert.Len(t, fanout.byRoom("conv:3", models.EventMessageNew), 1)
}

func TestTypingExcludesSender(t *testing.T) {
	fanout := &recordingFanout{}
	delivery := NewDelivery(fanout, nil, nil)

	delivery.Typing(4, 8, true, "session-a")

	sent := fanout.byRoom("conv:4", models.EventTyping)
	require.Len(t, sent, 1)
	assert.Equal(t, "session-a", sent[0].except)
	assert.Equal(t, models.TypingEvent{ConversationID: 4, UserID: 8, IsTyping: true}, sent[0].event.Data)
}

func TestNilDeliveryIsNoop(t *testing.T) {
	var delivery *Delivery
	assert.NotPanics(t, func() {
		delivery.MessageStored(context.Background(), models.Message{}, nil)
		delivery.ReadReceipt(1, 1, 1)
		delivery.Typing(1, 1, false, "")
	})
}
