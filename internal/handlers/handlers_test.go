package handlers

import (
	"github.com/gin-gonic/gin"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

type deps struct {
	convRepo *mocks.ConversationRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	favRepo  *mocks.FavoriteRepositoryMock
	users    *mocks.UserDirectoryMock
	fanout   *captureFanout

	directory *services.Directory
	ledger    *services.Ledger
}

type captureFanout struct {
	events []models.SocketEvent
	rooms  []string
}

func (f *captureFanout) EmitToRoom(room string, event models.SocketEvent, _ string) (int, int) {
	f.rooms = append(f.rooms, room)
	f.events = append(f.events, event)
	return 1, 0
}

func newDeps() *deps {
	d := &deps{
		convRepo: new(mocks.ConversationRepositoryMock),
		msgRepo:  new(mocks.MessageRepositoryMock),
		favRepo:  new(mocks.FavoriteRepositoryMock),
		users:    new(mocks.UserDirectoryMock),
		fanout:   &captureFanout{},
	}
	d.directory = services.NewDirectory(d.convRepo, d.favRepo, d.users, "FR")
	d.ledger = services.NewLedger(d.convRepo, d.msgRepo, services.NewDelivery(d.fanout, d.convRepo, nil))
	return d
}

func newTestRouter(userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	return r
}

func strPtr(s string) *string { return &s }
