package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"collab-service/internal/identity"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, ownerID int, name, description string, isPublic bool) (models.Group, error) {
	args := m.Called(ctx, ownerID, name, description, isPublic)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroupByInviteCode(ctx context.Context, code string) (models.Group, error) {
	args := m.Called(ctx, code)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) IsFaculty(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) IsGroupAdmin(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID int, userID int, role string) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *GroupRepositoryMock) AddFaculty(ctx context.Context, groupID int, userID int) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error) {
	args := m.Called(ctx, groupID)
	var members []models.GroupMember
	if val := args.Get(0); val != nil {
		members = val.([]models.GroupMember)
	}
	return members, args.Error(1)
}

func (m *GroupRepositoryMock) ListFaculty(ctx context.Context, groupID int) ([]models.User, error) {
	args := m.Called(ctx, groupID)
	var faculty []models.User
	if val := args.Get(0); val != nil {
		faculty = val.([]models.User)
	}
	return faculty, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, groupID int, senderID int, content, messageType string, file *models.FileMeta) (models.Message, error) {
	args := m.Called(ctx, groupID, senderID, content, messageType, file)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, groupID int, limit, offset int) ([]models.Message, int, error) {
	args := m.Called(ctx, groupID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Int(1), args.Error(2)
}

func (m *MessageRepositoryMock) SearchMessages(ctx context.Context, groupID int, query string) ([]models.Message, error) {
	args := m.Called(ctx, groupID, query)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int, content string) error {
	args := m.Called(ctx, messageID, content)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) AddReply(ctx context.Context, messageID int, senderID int, content string) error {
	args := m.Called(ctx, messageID, senderID, content)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) error {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) UpsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type TaskRepositoryMock struct {
	mock.Mock
}

func (m *TaskRepositoryMock) CreateTask(ctx context.Context, task models.Task) (models.Task, error) {
	args := m.Called(ctx, task)
	var created models.Task
	if val := args.Get(0); val != nil {
		created = val.(models.Task)
	}
	return created, args.Error(1)
}

func (m *TaskRepositoryMock) GetTask(ctx context.Context, taskID int) (models.Task, error) {
	args := m.Called(ctx, taskID)
	var task models.Task
	if val := args.Get(0); val != nil {
		task = val.(models.Task)
	}
	return task, args.Error(1)
}

func (m *TaskRepositoryMock) ListTasksForUser(ctx context.Context, userID int, status string, limit, offset int) ([]models.Task, int, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	var tasks []models.Task
	if val := args.Get(0); val != nil {
		tasks = val.([]models.Task)
	}
	return tasks, args.Int(1), args.Error(2)
}

func (m *TaskRepositoryMock) ListTasksForGroup(ctx context.Context, groupID int, status string) ([]models.Task, error) {
	args := m.Called(ctx, groupID, status)
	var tasks []models.Task
	if val := args.Get(0); val != nil {
		tasks = val.([]models.Task)
	}
	return tasks, args.Error(1)
}

func (m *TaskRepositoryMock) UpdateStatus(ctx context.Context, taskID int, status string, submissionText *string, submittedAt *time.Time) error {
	args := m.Called(ctx, taskID, status, submissionText, submittedAt)
	return args.Error(0)
}

func (m *TaskRepositoryMock) UpdateFeedback(ctx context.Context, taskID int, feedback *string, grade *int, status *string) error {
	args := m.Called(ctx, taskID, feedback, grade, status)
	return args.Error(0)
}

func (m *TaskRepositoryMock) Stats(ctx context.Context, groupID int) (models.TaskStats, error) {
	args := m.Called(ctx, groupID)
	var stats models.TaskStats
	if val := args.Get(0); val != nil {
		stats = val.(models.TaskStats)
	}
	return stats, args.Error(1)
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) ResolveToken(ctx context.Context, token string) (models.User, error) {
	args := m.Called(ctx, token)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.TaskRepository = (*TaskRepositoryMock)(nil)
var _ identity.Resolver = (*ResolverMock)(nil)
