package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrAlreadyMember  = errors.New("already a member")
	ErrFacultyPresent = errors.New("faculty already added")
)

// GroupRepository abstracts group directory persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, ownerID int, name, description string, isPublic bool) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (models.Group, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	IsFaculty(ctx context.Context, groupID int, userID int) (bool, error)
	IsGroupAdmin(ctx context.Context, groupID int, userID int) (bool, error)
	AddMember(ctx context.Context, groupID int, userID int, role string) error
	AddFaculty(ctx context.Context, groupID int, userID int) error
	ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error)
	ListFaculty(ctx context.Context, groupID int) ([]models.User, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and registers the creator as an admin member
// atomically. The invite code is a fresh random token.
func (r *GroupRepo) CreateGroup(ctx context.Context, ownerID int, name, description string, isPublic bool) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO groups (name, description, is_public, owner_id, invite_code) VALUES ($1, $2, $3, $4, $5)
         RETURNING id, name, description, is_public, owner_id, invite_code, created_at`,
		name, description, isPublic, ownerID, uuid.NewString()).StructScan(&group); err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)`,
		group.ID, ownerID, models.GroupRoleAdmin); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// ListGroupsForUser returns groups that are public or include the user as a
// member or faculty.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups,
		`SELECT DISTINCT g.id, g.name, g.description, g.is_public, g.owner_id, g.invite_code, g.created_at
         FROM groups g
         LEFT JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = $1
         LEFT JOIN group_faculty gf ON gf.group_id = g.id AND gf.user_id = $1
         WHERE g.is_public OR gm.user_id IS NOT NULL OR gf.user_id IS NOT NULL
         ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group,
		`SELECT id, name, description, is_public, owner_id, invite_code, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// GetGroupByInviteCode resolves an invite code to its group.
func (r *GroupRepo) GetGroupByInviteCode(ctx context.Context, code string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group,
		`SELECT id, name, description, is_public, owner_id, invite_code, created_at FROM groups WHERE invite_code=$1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// IsMember checks membership in the group's member set.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// IsFaculty checks membership in the group's faculty set.
func (r *GroupRepo) IsFaculty(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM group_faculty WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// IsGroupAdmin checks whether the user is a member with the admin role.
func (r *GroupRepo) IsGroupAdmin(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2 AND role=$3)`,
		groupID, userID, models.GroupRoleAdmin)
	return exists, err
}

// AddMember adds a user to the member set. Returns ErrAlreadyMember when the
// user is already present.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int, role string) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		groupID, userID, role)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAlreadyMember
	}
	return nil
}

// AddFaculty adds a user to the faculty set.
func (r *GroupRepo) AddFaculty(ctx context.Context, groupID int, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO group_faculty (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFacultyPresent
	}
	return nil
}

// ListMembers returns the member set with display fields resolved, in join
// order.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.SelectContext(ctx, &members,
		`SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at, u.name, u.email
         FROM group_members gm INNER JOIN users u ON u.id = gm.user_id
         WHERE gm.group_id=$1 ORDER BY gm.joined_at ASC`, groupID)
	return members, err
}

// ListFaculty returns the faculty set with display fields resolved.
func (r *GroupRepo) ListFaculty(ctx context.Context, groupID int) ([]models.User, error) {
	var faculty []models.User
	err := r.db.SelectContext(ctx, &faculty,
		`SELECT u.id, u.name, u.email, u.role, u.updated_at
         FROM group_faculty gf INNER JOIN users u ON u.id = gf.user_id
         WHERE gf.group_id=$1 ORDER BY u.name ASC`, groupID)
	return faculty, err
}
