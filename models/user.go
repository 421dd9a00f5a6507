package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a global identity. Email is unique across the platform.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name,omitempty" json:"name,omitempty"`
	Avatar        string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Email         string             `bson:"email" json:"email"`
	VerifiedEmail bool               `bson:"verified_email" json:"verified_email"`
	IsOrgAdmin    bool               `bson:"is_org_admin" json:"is_org_admin"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// Member is a User's standing in one Event. Exactly one document per (user_id, event_id).
type Member struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	EventID    primitive.ObjectID   `bson:"event_id" json:"event_id"`
	UserID     primitive.ObjectID   `bson:"user_id" json:"user_id"`
	IsAdmin    bool                 `bson:"is_admin" json:"is_admin"`
	IsApproved bool                 `bson:"is_approved" json:"is_approved"`
	Favorites  []primitive.ObjectID `bson:"favorites" json:"favorites"`
	CreatedAt  time.Time            `bson:"created_at" json:"created_at"`

	// GrantSeq is bumped inside every grant transaction so concurrent ones conflict.
	GrantSeq int64 `bson:"grant_seq" json:"-"`
}

func (m *Member) HasFavorite(dreamID primitive.ObjectID) bool {
	for _, id := range m.Favorites {
		if id == dreamID {
			return true
		}
	}
	return false
}
