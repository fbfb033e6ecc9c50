package handlers

import (
	"bytes"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/media"
	"messaging-service/internal/models"
)

const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func setupUploadRouter(t *testing.T, d *deps) (*gin.Engine, string) {
	t.Helper()
	root := t.TempDir()
	store, err := media.NewDiskStore(root, "http://cdn.test")
	require.NoError(t, err)

	handler := NewUploadHandler(d.ledger, store, 3, 10<<20)
	r := newTestRouter(1)
	r.POST("/conversations/:conversation_id/uploads", handler.Upload)
	return r, root
}

func multipartRequest(t *testing.T, path string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func storedFiles(t *testing.T, root string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, "chat"))
	require.NoError(t, err)
	return entries
}

func TestUploadTwoImagesSendsOneMessage(t *testing.T) {
	d := newDeps()
	router, root := setupUploadRouter(t, d)
	png, err := base64.StdEncoding.DecodeString(pixelPNG)
	require.NoError(t, err)

	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(true, nil)
	stored := models.Message{ID: 50, ConversationID: 4, SenderID: 1, Attachments: models.Attachments{
		{Type: models.AttachmentImage, URL: "http://cdn.test/uploads/chat/a.png"},
		{Type: models.AttachmentImage, URL: "http://cdn.test/uploads/chat/b.png"},
	}}
	d.msgRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return len(in.Attachments) == 2 && in.Body == nil
	})).Return(stored, true, nil).Once()
	d.convRepo.On("ListParticipantIDs", mock.Anything, 4).Return([]int{1, 2}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/conversations/4/uploads", map[string][]byte{"a.png": png, "b.png": png}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, storedFiles(t, root), 2)

	counts := map[string]int{}
	for i, ev := range d.fanout.events {
		counts[d.fanout.rooms[i]+"/"+ev.Event]++
	}
	assert.Equal(t, 2, counts["conv:4/"+models.EventMessageCreated])
	assert.Equal(t, 1, counts["conv:4/"+models.EventMessageNew])
	assert.Equal(t, 1, counts["user:1/"+models.EventMessageNew])
	assert.Equal(t, 1, counts["user:2/"+models.EventMessageNew])
}

func TestUploadNonMemberWritesNothing(t *testing.T) {
	d := newDeps()
	router, root := setupUploadRouter(t, d)
	png, err := base64.StdEncoding.DecodeString(pixelPNG)
	require.NoError(t, err)

	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(false, nil).Once()
	d.convRepo.On("GetConversation", mock.Anything, 4).Return(models.Conversation{ID: 4}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/conversations/4/uploads", map[string][]byte{"a.png": png}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, storedFiles(t, root))
	d.msgRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestUploadRejectsNonMediaAndCleansUp(t *testing.T) {
	d := newDeps()
	router, root := setupUploadRouter(t, d)

	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(true, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/conversations/4/uploads", map[string][]byte{"notes.txt": []byte("just some text")}))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, storedFiles(t, root))
}

func TestUploadTooManyFiles(t *testing.T) {
	d := newDeps()
	router, _ := setupUploadRouter(t, d)
	png, err := base64.StdEncoding.DecodeString(pixelPNG)
	require.NoError(t, err)

	d.convRepo.On("IsParticipant", mock.Anything, 4, 1).Return(true, nil).Once()

	files := map[string][]byte{"1.png": png, "2.png": png, "3.png": png, "4.png": png}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/conversations/4/uploads", files))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
