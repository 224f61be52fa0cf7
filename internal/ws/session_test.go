package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collab-service/internal/identity"
	"collab-service/internal/mocks"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

func newTestHandler(groups *mocks.GroupRepositoryMock, messages *mocks.MessageRepositoryMock) *Handler {
	return NewHandler(NewHub(zap.NewNop()), groups, messages, new(mocks.UserRepositoryMock), new(mocks.ResolverMock), zap.NewNop())
}

func envelope(t *testing.T, event string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Envelope{Event: event, Data: data})
	require.NoError(t, err)
	return raw
}

func TestDispatchUnknownEvent(t *testing.T) {
	handler := newTestHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock))
	client, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	handler.dispatch(context.Background(), client, envelope(t, "bogus-event", struct{}{}))

	require.Equal(t, []string{EventError}, conn.events())
}

func TestDispatchMalformedPayload(t *testing.T) {
	handler := newTestHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock))
	client, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	handler.dispatch(context.Background(), client, []byte("not json"))

	require.Equal(t, []string{EventError}, conn.events())
}

func TestJoinGroupSuccess(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := newTestHandler(groups, new(mocks.MessageRepositoryMock))
	client, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	groups.On("GetGroup", mock.Anything, 5).Return(models.Group{ID: 5}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()

	handler.dispatch(context.Background(), client, envelope(t, EventJoinGroup, joinGroupPayload{GroupID: 5}))

	require.True(t, handler.hub.InRoom(5, client))
	require.Equal(t, []string{EventJoinedGroup}, conn.events())
	groups.AssertExpectations(t)
}

func TestJoinGroupFacultyAccess(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := newTestHandler(groups, new(mocks.MessageRepositoryMock))
	client, conn := newTestClient(models.User{ID: 3, Role: models.RoleFaculty})

	groups.On("GetGroup", mock.Anything, 5).Return(models.Group{ID: 5}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 3).Return(false, nil).Once()
	groups.On("IsFaculty", mock.Anything, 5, 3).Return(true, nil).Once()

	handler.dispatch(context.Background(), client, envelope(t, EventJoinGroup, joinGroupPayload{GroupID: 5}))

	require.True(t, handler.hub.InRoom(5, client))
	require.Equal(t, []string{EventJoinedGroup}, conn.events())
	groups.AssertExpectations(t)
}

func TestJoinGroupDeniedForOutsider(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := newTestHandler(groups, new(mocks.MessageRepositoryMock))
	client, conn := newTestClient(models.User{ID: 9, Role: models.RoleStudent})

	groups.On("GetGroup", mock.Anything, 5).Return(models.Group{ID: 5}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 9).Return(false, nil).Once()
	groups.On("IsFaculty", mock.Anything, 5, 9).Return(false, nil).Once()

	handler.dispatch(context.Background(), client, envelope(t, EventJoinGroup, joinGroupPayload{GroupID: 5}))

	require.False(t, handler.hub.InRoom(5, client))
	require.Equal(t, []string{EventError}, conn.events())
	groups.AssertExpectations(t)
}

func TestJoinGroupUnknownGroup(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := newTestHandler(groups, new(mocks.MessageRepositoryMock))
	client, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	groups.On("GetGroup", mock.Anything, 404).Return(nil, repositories.ErrGroupNotFound).Once()

	handler.dispatch(context.Background(), client, envelope(t, EventJoinGroup, joinGroupPayload{GroupID: 404}))

	require.Equal(t, []string{EventError}, conn.events())
	groups.AssertExpectations(t)
}

func TestLeaveGroupIsIdempotent(t *testing.T) {
	handler := newTestHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock))
	client, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	handler.dispatch(context.Background(), client, envelope(t, EventLeaveGroup, joinGroupPayload{GroupID: 5}))
	handler.dispatch(context.Background(), client, envelope(t, EventLeaveGroup, joinGroupPayload{GroupID: 5}))

	require.Equal(t, []string{EventLeftGroup, EventLeftGroup}, conn.events())
}

func TestSendMessageRequiresJoin(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	client, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	handler.dispatch(context.Background(), client, envelope(t, EventSendMessage, sendMessagePayload{GroupID: 5, Content: "hi"}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageBroadcastsToRoom(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	sender, senderConn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	peer, peerConn := newTestClient(models.User{ID: 2, Role: models.RoleStudent})
	handler.hub.AddClient(5, sender)
	handler.hub.AddClient(5, peer)

	groups.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, 5, 1, "hi", models.MessageTypeText, (*models.FileMeta)(nil)).
		Return(models.Message{ID: 11, GroupID: 5, SenderID: 1, Content: "hi"}, nil).Once()

	handler.dispatch(context.Background(), sender, envelope(t, EventSendMessage, sendMessagePayload{GroupID: 5, Content: "hi"}))

	require.Equal(t, []string{EventNewMessage}, senderConn.events())
	require.Equal(t, []string{EventNewMessage}, peerConn.events())
	groups.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestSendMessageStripsMarkup(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	sender, _ := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	handler.hub.AddClient(5, sender)

	groups.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, 5, 1, "hello", models.MessageTypeText, (*models.FileMeta)(nil)).
		Return(models.Message{ID: 11, GroupID: 5, SenderID: 1, Content: "hello"}, nil).Once()

	handler.dispatch(context.Background(), sender, envelope(t, EventSendMessage, sendMessagePayload{GroupID: 5, Content: "<b>hello</b>"}))

	messages.AssertExpectations(t)
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	sender, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	handler.hub.AddClient(5, sender)

	handler.dispatch(context.Background(), sender, envelope(t, EventSendMessage, sendMessagePayload{GroupID: 5, Content: "   "}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageFileTypeNeedsMetadata(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	sender, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	handler.hub.AddClient(5, sender)

	payload := sendMessagePayload{GroupID: 5, Content: "report", MessageType: models.MessageTypeFile}
	handler.dispatch(context.Background(), sender, envelope(t, EventSendMessage, payload))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageAuthorOnly(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	client, conn := newTestClient(models.User{ID: 3, Role: models.RoleFaculty})
	handler.hub.AddClient(5, client)

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 3).Return(false, nil).Once()
	groups.On("IsFaculty", mock.Anything, 5, 3).Return(true, nil).Once()

	handler.dispatch(context.Background(), client, envelope(t, EventEditMessage, editMessagePayload{MessageID: 11, NewContent: "changed"}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageSuccess(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	author, authorConn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	handler.hub.AddClient(5, author)

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1, Content: "old"}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("UpdateContent", mock.Anything, 11, "new").Return(nil).Once()
	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1, Content: "new", IsEdited: true}, nil).Once()

	handler.dispatch(context.Background(), author, envelope(t, EventEditMessage, editMessagePayload{MessageID: 11, NewContent: "new"}))

	require.Equal(t, []string{EventMessageEdited}, authorConn.events())
	messages.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func TestEditMessageRequiresJoin(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	author, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1}, nil).Once()

	handler.dispatch(context.Background(), author, envelope(t, EventEditMessage, editMessagePayload{MessageID: 11, NewContent: "new"}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
	groups.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageRevokedMembership(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	author, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	handler.hub.AddClient(5, author)

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()
	groups.On("IsFaculty", mock.Anything, 5, 1).Return(false, nil).Once()

	handler.dispatch(context.Background(), author, envelope(t, EventEditMessage, editMessagePayload{MessageID: 11, NewContent: "new"}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
	groups.AssertExpectations(t)
}

func TestDeleteMessageBySenderBroadcasts(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	sender, senderConn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	handler.hub.AddClient(5, sender)

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("DeleteMessage", mock.Anything, 11).Return(nil).Once()

	handler.dispatch(context.Background(), sender, envelope(t, EventDeleteMessage, deleteMessagePayload{MessageID: 11}))

	require.Equal(t, []string{EventMessageDeleted}, senderConn.events())
	messages.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func TestDeleteMessageByFacultyModerator(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	moderator, _ := newTestClient(models.User{ID: 3, Role: models.RoleFaculty})
	handler.hub.AddClient(5, moderator)

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 3).Return(false, nil).Once()
	groups.On("IsFaculty", mock.Anything, 5, 3).Return(true, nil).Once()
	messages.On("DeleteMessage", mock.Anything, 11).Return(nil).Once()

	handler.dispatch(context.Background(), moderator, envelope(t, EventDeleteMessage, deleteMessagePayload{MessageID: 11}))

	messages.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func TestDeleteMessageDeniedForPeer(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	peer, conn := newTestClient(models.User{ID: 2, Role: models.RoleStudent})
	handler.hub.AddClient(5, peer)

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 2).Return(true, nil).Once()

	handler.dispatch(context.Background(), peer, envelope(t, EventDeleteMessage, deleteMessagePayload{MessageID: 11}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)
}

func TestDeleteMessageRequiresJoin(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	sender, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 1}, nil).Once()

	handler.dispatch(context.Background(), sender, envelope(t, EventDeleteMessage, deleteMessagePayload{MessageID: 11}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)
	groups.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestTypingRelayExcludesSender(t *testing.T) {
	handler := newTestHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock))
	typist, typistConn := newTestClient(models.User{ID: 1, Name: "ana", Role: models.RoleStudent})
	peer, peerConn := newTestClient(models.User{ID: 2, Role: models.RoleStudent})
	handler.hub.AddClient(5, typist)
	handler.hub.AddClient(5, peer)

	handler.dispatch(context.Background(), typist, envelope(t, EventTypingStart, typingPayload{GroupID: 5}))
	handler.dispatch(context.Background(), typist, envelope(t, EventTypingStop, typingPayload{GroupID: 5}))

	require.Empty(t, typistConn.events())
	require.Equal(t, []string{EventUserTyping, EventUserStopTyping}, peerConn.events())
}

func TestTypingDroppedWhenNotJoined(t *testing.T) {
	handler := newTestHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock))
	typist, typistConn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})

	handler.dispatch(context.Background(), typist, envelope(t, EventTypingStart, typingPayload{GroupID: 5}))

	// Best-effort signal: no error, no delivery.
	require.Empty(t, typistConn.events())
}

func TestAddReplyBroadcastsUpdate(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	client, conn := newTestClient(models.User{ID: 1, Role: models.RoleStudent})
	handler.hub.AddClient(5, client)

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 2}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("AddReply", mock.Anything, 11, 1, "nice").Return(nil).Once()
	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 2, Replies: []models.Reply{{ID: 1, Content: "nice"}}}, nil).Once()

	handler.dispatch(context.Background(), client, envelope(t, EventAddReply, addReplyPayload{MessageID: 11, Content: "nice"}))

	require.Equal(t, []string{EventMessageUpdated}, conn.events())
	messages.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func setupHandshakeRouter(resolver *mocks.ResolverMock, users *mocks.UserRepositoryMock) (*Handler, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(NewHub(zap.NewNop()), new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock), users, resolver, zap.NewNop())
	r := gin.New()
	r.GET("/ws", handler.Handle)
	return handler, r
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	resolver := new(mocks.ResolverMock)
	handler, router := setupHandshakeRouter(resolver, new(mocks.UserRepositoryMock))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, handler.hub.rooms)
	resolver.AssertNotCalled(t, "ResolveToken", mock.Anything, mock.Anything)
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	resolver := new(mocks.ResolverMock)
	users := new(mocks.UserRepositoryMock)
	handler, router := setupHandshakeRouter(resolver, users)

	resolver.On("ResolveToken", mock.Anything, "bad").Return(nil, identity.ErrInvalidToken).Once()

	req := httptest.NewRequest(http.MethodGet, "/ws?token=bad", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, handler.hub.rooms)
	resolver.AssertExpectations(t)
	users.AssertNotCalled(t, "UpsertUser", mock.Anything, mock.Anything)
}

func TestHandshakeRequiresUpgrade(t *testing.T) {
	resolver := new(mocks.ResolverMock)
	users := new(mocks.UserRepositoryMock)
	handler, router := setupHandshakeRouter(resolver, users)

	resolver.On("ResolveToken", mock.Anything, "good").
		Return(models.User{ID: 1, Role: models.RoleStudent}, nil).Once()
	users.On("UpsertUser", mock.Anything, mock.Anything).Return(nil).Once()

	// Authenticated but not a websocket handshake: the upgrade fails and no
	// room state is created.
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, handler.hub.rooms)
	resolver.AssertExpectations(t)
}

func TestToggleReactionDeniedOutsideGroup(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newTestHandler(groups, messages)
	client, conn := newTestClient(models.User{ID: 9, Role: models.RoleStudent})

	messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, GroupID: 5, SenderID: 2}, nil).Once()
	groups.On("IsMember", mock.Anything, 5, 9).Return(false, nil).Once()
	groups.On("IsFaculty", mock.Anything, 5, 9).Return(false, nil).Once()

	handler.dispatch(context.Background(), client, envelope(t, EventToggleReaction, toggleReactionPayload{MessageID: 11, Emoji: "👍"}))

	require.Equal(t, []string{EventError}, conn.events())
	messages.AssertNotCalled(t, "ToggleReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
