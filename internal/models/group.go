package models

import "time"

// Roles within a group's member set.
const (
	GroupRoleAdmin  = "admin"
	GroupRoleMember = "member"
)

// Group represents a collaboration group. The invite code is a unique token
// permitting self-service join without prior membership.
type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	IsPublic    bool      `db:"is_public" json:"is_public"`
	OwnerID     int       `db:"owner_id" json:"owner_id"`
	InviteCode  string    `db:"invite_code" json:"invite_code,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// GroupMember is one entry in a group's member set. A user appears at most
// once; the creator is added as an admin member at creation time.
type GroupMember struct {
	GroupID  int       `db:"group_id" json:"group_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
	Name     string    `db:"name" json:"name"`
	Email    string    `db:"email" json:"email"`
}

// GroupDetail is the API-facing view of a group with its member and faculty
// sets resolved.
type GroupDetail struct {
	Group
	Members []GroupMember `json:"members"`
	Faculty []User        `json:"faculty"`
}
