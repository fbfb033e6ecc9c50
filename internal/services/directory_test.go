package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func newDirectoryUnderTest() (*Directory, *mocks.ConversationRepositoryMock, *mocks.FavoriteRepositoryMock, *mocks.UserDirectoryMock) {
	convRepo := new(mocks.ConversationRepositoryMock)
	favRepo := new(mocks.FavoriteRepositoryMock)
	users := new(mocks.UserDirectoryMock)
	return NewDirectory(convRepo, favRepo, users, "FR"), convRepo, favRepo, users
}

func TestFindOrCreateDirectRejectsSelf(t *testing.T) {
	dir, convRepo, _, _ := newDirectoryUnderTest()

	_, err := dir.FindOrCreateDirect(context.Background(), 4, 4)
	assert.ErrorIs(t, err, ErrSelfConversation)
	convRepo.AssertNotCalled(t, "FindOrCreateDirect", mock.Anything, mock.Anything, mock.Anything)
}

func TestFindOrCreateDirectUnknownPeer(t *testing.T) {
	dir, _, _, users := newDirectoryUnderTest()
	users.On("GetUser", mock.Anything, 8).Return(nil, repositories.ErrUserNotFound).Once()

	_, err := dir.FindOrCreateDirect(context.Background(), 4, 8)
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestFindOrCreateDirectReturnsSameConversationForBothDirections(t *testing.T) {
	dir, convRepo, _, users := newDirectoryUnderTest()

	users.On("GetUser", mock.Anything, 2).Return(models.UserProfile{ID: 2, FirstName: "Ana", LastName: "Roy"}, nil)
	users.On("GetUser", mock.Anything, 1).Return(models.UserProfile{ID: 1, Phone: "+33600000001"}, nil)
	convRepo.On("FindOrCreateDirect", mock.Anything, 1, 2).Return(models.Conversation{ID: 30}, true, nil).Once()
	convRepo.On("FindOrCreateDirect", mock.Anything, 2, 1).Return(models.Conversation{ID: 30}, false, nil).Once()

	first, err := dir.FindOrCreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)
	second, err := dir.FindOrCreateDirect(context.Background(), 2, 1)
	require.NoError(t, err)

	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, "Ana Roy", first.DisplayName)
	assert.Equal(t, "+33600000001", second.DisplayName)
}

func TestFindOrCreateDirectConcurrentCallersAgree(t *testing.T) {
	dir, convRepo, _, users := newDirectoryUnderTest()

	users.On("GetUser", mock.Anything, 2).Return(models.UserProfile{ID: 2}, nil)
	var mu sync.Mutex
	created := false
	convRepo.On("FindOrCreateDirect", mock.Anything, 1, 2).Return(models.Conversation{ID: 77}, true, nil).Once()
	convRepo.On("FindOrCreateDirect", mock.Anything, 1, 2).Return(models.Conversation{ID: 77}, false, nil)

	const n = 20
	var wg sync.WaitGroup
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := dir.FindOrCreateDirect(context.Background(), 1, 2)
			assert.NoError(t, err)
			ids[i] = res.Conversation.ID
			if res.Created {
				mu.Lock()
				assert.False(t, created, "only one caller may create")
				created = true
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, 77, id)
	}
	assert.True(t, created)
}

func TestFindOrCreateDirectByPhoneNormalizes(t *testing.T) {
	dir, convRepo, _, users := newDirectoryUnderTest()

	users.On("FindByPhone", mock.Anything, "+33612345678").Return(models.UserProfile{ID: 6, FirstName: "Luc"}, nil).Once()
	convRepo.On("FindOrCreateDirect", mock.Anything, 1, 6).Return(models.Conversation{ID: 12}, true, nil).Once()

	res, err := dir.FindOrCreateDirectByPhone(context.Background(), 1, "06 12 34 56 78")
	require.NoError(t, err)
	assert.Equal(t, 12, res.Conversation.ID)
	assert.Equal(t, "Luc", res.DisplayName)

	_, err = dir.FindOrCreateDirectByPhone(context.Background(), 1, "not a phone")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestFindOrCreateDirectByPhoneSelf(t *testing.T) {
	dir, _, _, users := newDirectoryUnderTest()
	users.On("FindByPhone", mock.Anything, "+33612345678").Return(models.UserProfile{ID: 1}, nil).Once()

	_, err := dir.FindOrCreateDirectByPhone(context.Background(), 1, "+33612345678")
	assert.ErrorIs(t, err, ErrSelfConversation)
}

func TestCreateGroupDeduplicatesMembers(t *testing.T) {
	dir, convRepo, _, _ := newDirectoryUnderTest()

	convRepo.On("CreateGroup", mock.Anything, 1, mock.MatchedBy(func(title *string) bool {
		return title != nil && *title == "Hunt"
	}), []int{2, 3}).Return(models.Conversation{ID: 40, IsGroup: true}, nil).Once()

	conv, err := dir.CreateGroup(context.Background(), 1, strPtr(" Hunt "), []int{2, 3, 2, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 40, conv.ID)
	convRepo.AssertExpectations(t)
}

func TestAddMembersRequiresAdminOfGroup(t *testing.T) {
	dir, convRepo, _, _ := newDirectoryUnderTest()
	ctx := context.Background()

	convRepo.On("GetParticipant", mock.Anything, 40, 2).Return(models.Participant{Role: models.RoleMember}, nil)
	convRepo.On("GetParticipant", mock.Anything, 40, 1).Return(models.Participant{Role: models.RoleAdmin}, nil)
	convRepo.On("GetParticipant", mock.Anything, 30, 1).Return(models.Participant{Role: models.RoleMember}, nil)
	convRepo.On("GetConversation", mock.Anything, 40).Return(models.Conversation{ID: 40, IsGroup: true}, nil)
	convRepo.On("GetConversation", mock.Anything, 30).Return(models.Conversation{ID: 30}, nil)
	convRepo.On("AddMembers", mock.Anything, 40, []int{5}).Return(1, nil).Once()

	_, err := dir.AddMembers(ctx, 40, 2, []int{5})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = dir.AddMembers(ctx, 30, 1, []int{5})
	assert.ErrorIs(t, err, ErrNotAGroup)

	added, err := dir.AddMembers(ctx, 40, 1, []int{5, 5, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestDeleteRequiresParticipant(t *testing.T) {
	dir, convRepo, _, _ := newDirectoryUnderTest()

	convRepo.On("IsParticipant", mock.Anything, 9, 3).Return(false, nil).Once()
	convRepo.On("GetConversation", mock.Anything, 9).Return(models.Conversation{ID: 9}, nil).Once()

	err := dir.Delete(context.Background(), 9, 3)
	assert.ErrorIs(t, err, ErrForbidden)
	convRepo.AssertNotCalled(t, "DeleteConversation", mock.Anything, mock.Anything)
}

func TestDeleteByAnyParticipant(t *testing.T) {
	dir, convRepo, _, _ := newDirectoryUnderTest()

	convRepo.On("IsParticipant", mock.Anything, 9, 3).Return(true, nil).Once()
	convRepo.On("DeleteConversation", mock.Anything, 9).Return(nil).Once()

	require.NoError(t, dir.Delete(context.Background(), 9, 3))
	convRepo.AssertExpectations(t)
}

func TestListForUserOrdering(t *testing.T) {
	dir, convRepo, _, users := newDirectoryUnderTest()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	peer := 2
	lastID := int64(3)
	lastAt := base.Add(time.Hour)

	// B has a message, A is a favorite without messages, C has neither.
	rows := []models.ConversationRow{
		{ID: 2, IsGroup: false, CreatedAt: base, PeerID: &peer, LastMessageID: &lastID, LastCreatedAt: &lastAt, LastBody: strPtr("hey")},
		{ID: 3, IsGroup: true, CreatedAt: base.Add(2 * time.Hour)},
		{ID: 1, IsGroup: true, Title: strPtr("Alpha"), CreatedAt: base, IsFavorite: true},
	}
	convRepo.On("ListForUser", mock.Anything, 1).Return(rows, nil).Once()
	users.On("BulkUsers", mock.Anything, []int{2}).Return([]models.UserProfile{{ID: 2, FirstName: "Ana"}}, nil).Once()

	list, err := dir.ListForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "Alpha", list[0].DisplayName)
	assert.Equal(t, "Ana", list[1].DisplayName)
	require.NotNil(t, list[1].LastMessage)
	assert.Equal(t, int64(3), list[1].LastMessage.ID)
	assert.Equal(t, "Group #3", list[2].DisplayName)
}

func TestSortSummariesTieBreakers(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []models.ConversationSummary{
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base},
		{ID: 3, CreatedAt: base.Add(time.Minute)},
		{ID: 4, CreatedAt: base, LastMessage: &models.LastMessage{CreatedAt: base}},
		{ID: 5, CreatedAt: base, LastMessage: &models.LastMessage{CreatedAt: base.Add(time.Second)}},
	}
	SortSummaries(list)

	ids := make([]int, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int{5, 4, 3, 2, 1}, ids)
}

func TestDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "Group #4", DisplayName(models.ConversationSummary{ID: 4, IsGroup: true, Title: strPtr("  ")}))
	assert.Equal(t, "Conversation #5", DisplayName(models.ConversationSummary{ID: 5}))
	assert.Equal(t, "+336", DisplayName(models.ConversationSummary{ID: 5, Peer: &models.UserProfile{Phone: "+336"}}))
}

func TestToggleFavoriteRequiresMembership(t *testing.T) {
	dir, convRepo, favRepo, _ := newDirectoryUnderTest()

	convRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	favRepo.On("ToggleFavorite", mock.Anything, 1, 7).Return(true, nil).Once()
	convRepo.On("IsParticipant", mock.Anything, 8, 1).Return(false, nil).Once()
	convRepo.On("GetConversation", mock.Anything, 8).Return(nil, repositories.ErrConversationNotFound).Once()

	favorited, err := dir.ToggleFavorite(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.True(t, favorited)

	_, err = dir.ToggleFavorite(context.Background(), 1, 8)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddFavoriteDuplicate(t *testing.T) {
	dir, convRepo, favRepo, _ := newDirectoryUnderTest()

	convRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	favRepo.On("AddFavorite", mock.Anything, 1, 7).Return(repositories.ErrAlreadyFavorite).Once()

	assert.ErrorIs(t, dir.AddFavorite(context.Background(), 1, 7), ErrAlreadyFavorite)
}
