// Package store persists users, events, members, dreams and grants.
//
// Each entity type lives in its own collection keyed by ObjectID. Uniqueness
// violations come back as apperrors CONFLICT, missing documents as NOT_FOUND.
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/models"
)

// Collection names.
const (
	UsersCollection   = "users"
	EventsCollection  = "events"
	MembersCollection = "members"
	DreamsCollection  = "dreams"
	GrantsCollection  = "grants"
	TokensCollection  = "spent_tokens"
)

// GrantFilter selects grants. Nil ids match anything; an empty Types matches all types.
// Reclaimed grants are skipped unless IncludeReclaimed is set.
type GrantFilter struct {
	EventID          *primitive.ObjectID
	DreamID          *primitive.ObjectID
	MemberID         *primitive.ObjectID
	Types            []models.GrantType
	IncludeReclaimed bool
}

type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateUser writes name, avatar and verified_email.
	UpdateUser(ctx context.Context, u *models.User) error

	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	UpdateEvent(ctx context.Context, e *models.Event) error
	// DeleteEvent only exists to undo an event creation that failed halfway.
	DeleteEvent(ctx context.Context, id primitive.ObjectID) error

	CreateMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, id primitive.ObjectID) (*models.Member, error)
	GetMemberByUser(ctx context.Context, eventID, userID primitive.ObjectID) (*models.Member, error)
	ListMembers(ctx context.Context, eventID primitive.ObjectID, approvedOnly bool) ([]models.Member, error)
	CountMembers(ctx context.Context, eventID primitive.ObjectID, approvedOnly bool) (int, error)
	// UpdateMember writes is_admin and is_approved.
	UpdateMember(ctx context.Context, m *models.Member) error
	DeleteMember(ctx context.Context, id primitive.ObjectID) error
	SetFavorite(ctx context.Context, memberID, dreamID primitive.ObjectID, favorite bool) (*models.Member, error)

	CreateDream(ctx context.Context, d *models.Dream) error
	GetDream(ctx context.Context, id primitive.ObjectID) (*models.Dream, error)
	GetDreamBySlug(ctx context.Context, eventID primitive.ObjectID, slug string) (*models.Dream, error)
	// ListDreams returns the event's dreams; a non-empty search narrows them to
	// title/description/summary matches.
	ListDreams(ctx context.Context, eventID primitive.ObjectID, search string) ([]models.Dream, error)
	// UpdateDream writes the content fields. Approval, co-creators and comments
	// are only changed through their own targeted writes.
	UpdateDream(ctx context.Context, d *models.Dream) error
	SetDreamApproved(ctx context.Context, dreamID primitive.ObjectID, approved bool, at time.Time) (*models.Dream, error)
	AddComment(ctx context.Context, dreamID primitive.ObjectID, c models.Comment) (*models.Dream, error)
	DeleteComment(ctx context.Context, dreamID, commentID primitive.ObjectID) (*models.Dream, error)
	RemoveCocreator(ctx context.Context, eventID, memberID primitive.ObjectID) error

	CreateGrant(ctx context.Context, g *models.Grant) error
	GetGrant(ctx context.Context, id primitive.ObjectID) (*models.Grant, error)
	ListGrants(ctx context.Context, f GrantFilter) ([]models.Grant, error)
	SumGrants(ctx context.Context, f GrantFilter) (int, error)
	DeleteGrant(ctx context.Context, id primitive.ObjectID) error
	// ReclaimGrants flags every live grant of the dream as reclaimed and returns how many changed.
	ReclaimGrants(ctx context.Context, dreamID primitive.ObjectID) (int64, error)

	// WithGrantLock runs fn so that no other WithGrantLock call for the same member
	// or the same dream interleaves with it. Reads and writes made through the ctx
	// passed to fn are part of the same unit.
	WithGrantLock(ctx context.Context, memberID, dreamID primitive.ObjectID, fn func(ctx context.Context) error) error

	// SpendToken records a single-use token id. A second call with the same id
	// is a CONFLICT. Records may be dropped once expiresAt has passed.
	SpendToken(ctx context.Context, id string, expiresAt time.Time) error

	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

func (f GrantFilter) matches(g *models.Grant) bool {
	if f.EventID != nil && g.EventID != *f.EventID {
		return false
	}
	if f.DreamID != nil && g.DreamID != *f.DreamID {
		return false
	}
	if f.MemberID != nil && g.MemberID != *f.MemberID {
		return false
	}
	if !f.IncludeReclaimed && g.Reclaimed {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if g.Type == t {
			return true
		}
	}
	return false
}
