package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
)

func TestMemory_MemberUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	eventID, userID := primitive.NewObjectID(), primitive.NewObjectID()
	require.NoError(t, s.CreateMember(ctx, &models.Member{EventID: eventID, UserID: userID}))

	err := s.CreateMember(ctx, &models.Member{EventID: eventID, UserID: userID})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict), "got %v", err)

	// Same user in another event is fine.
	assert.NoError(t, s.CreateMember(ctx, &models.Member{EventID: primitive.NewObjectID(), UserID: userID}))
}

func TestMemory_UniqueKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateUser(ctx, &models.User{Email: "ada@example.com"}))
	err := s.CreateUser(ctx, &models.User{Email: "ADA@example.com"})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	require.NoError(t, s.CreateEvent(ctx, &models.Event{Slug: "summer"}))
	err = s.CreateEvent(ctx, &models.Event{Slug: "summer"})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	eventID := primitive.NewObjectID()
	require.NoError(t, s.CreateDream(ctx, &models.Dream{EventID: eventID, Slug: "tent"}))
	err = s.CreateDream(ctx, &models.Dream{EventID: eventID, Slug: "tent"})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	assert.NoError(t, s.CreateDream(ctx, &models.Dream{EventID: primitive.NewObjectID(), Slug: "tent"}))
}

func TestMemory_UpdateDreamSlugConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	eventID := primitive.NewObjectID()

	a := &models.Dream{EventID: eventID, Slug: "a"}
	b := &models.Dream{EventID: eventID, Slug: "b"}
	require.NoError(t, s.CreateDream(ctx, a))
	require.NoError(t, s.CreateDream(ctx, b))

	b.Slug = "a"
	err := s.UpdateDream(ctx, b)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestMemory_UpdateDreamKeepsApprovalAndCocreators(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	creator, other := primitive.NewObjectID(), primitive.NewObjectID()

	d := &models.Dream{EventID: primitive.NewObjectID(), Slug: "tent", Approved: true, Cocreators: []primitive.ObjectID{creator, other}}
	require.NoError(t, s.CreateDream(ctx, d))
	stale, err := s.GetDream(ctx, d.ID)
	require.NoError(t, err)

	at := time.Now().UTC()
	unapproved, err := s.SetDreamApproved(ctx, d.ID, false, at)
	require.NoError(t, err)
	assert.False(t, unapproved.Approved)
	assert.Equal(t, at, unapproved.UpdatedAt)

	stale.Title = "Big Tent"
	stale.Cocreators = stale.Cocreators[:1]
	require.NoError(t, s.UpdateDream(ctx, stale))

	got, err := s.GetDream(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Big Tent", got.Title)
	assert.False(t, got.Approved)
	assert.Equal(t, []primitive.ObjectID{creator, other}, got.Cocreators)

	_, err = s.SetDreamApproved(ctx, primitive.NewObjectID(), true, at)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestMemory_SpendToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.SpendToken(ctx, "a", time.Now().Add(time.Minute)))
	err := s.SpendToken(ctx, "a", time.Now().Add(time.Minute))
	assert.True(t, apperrors.Is(err, apperrors.KindConflict), "got %v", err)
	assert.NoError(t, s.SpendToken(ctx, "b", time.Now().Add(time.Minute)))

	// expired entries are forgotten
	require.NoError(t, s.SpendToken(ctx, "old", time.Now().Add(-time.Second)))
	assert.NoError(t, s.SpendToken(ctx, "old", time.Now().Add(time.Minute)))
}

func TestMemory_DeleteEvent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	e := &models.Event{Slug: "gone"}
	require.NoError(t, s.CreateEvent(ctx, e))
	require.NoError(t, s.DeleteEvent(ctx, e.ID))

	_, err := s.GetEventBySlug(ctx, "gone")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.True(t, apperrors.Is(s.DeleteEvent(ctx, e.ID), apperrors.KindNotFound))
	assert.NoError(t, s.CreateEvent(ctx, &models.Event{Slug: "gone"}))
}

func TestMemory_ListDreamsSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	eventID := primitive.NewObjectID()

	require.NoError(t, s.CreateDream(ctx, &models.Dream{EventID: eventID, Slug: "dome", Title: "Geodesic Dome"}))
	require.NoError(t, s.CreateDream(ctx, &models.Dream{EventID: eventID, Slug: "sauna", Title: "Sauna", Summary: "a warm DOME of steam"}))
	require.NoError(t, s.CreateDream(ctx, &models.Dream{EventID: eventID, Slug: "kitchen", Title: "Kitchen", Description: "soup"}))

	all, err := s.ListDreams(ctx, eventID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	hits, err := s.ListDreams(ctx, eventID, "dome")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "dome", hits[0].Slug)
	assert.Equal(t, "sauna", hits[1].Slug)

	hits, err = s.ListDreams(ctx, eventID, "SOUP")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "kitchen", hits[0].Slug)
}

func TestMemory_GrantSumsAndReclaim(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	eventID, dreamID, memberID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	for _, g := range []models.Grant{
		{EventID: eventID, DreamID: dreamID, MemberID: memberID, Value: 3, Type: models.GrantUser},
		{EventID: eventID, DreamID: dreamID, MemberID: memberID, Value: 2, Type: models.GrantPreFund},
		{EventID: eventID, DreamID: primitive.NewObjectID(), MemberID: memberID, Value: 4, Type: models.GrantUser},
	} {
		g := g
		require.NoError(t, s.CreateGrant(ctx, &g))
	}

	total, err := s.SumGrants(ctx, GrantFilter{DreamID: &dreamID})
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	userOnly, err := s.SumGrants(ctx, GrantFilter{MemberID: &memberID, Types: []models.GrantType{models.GrantUser}})
	require.NoError(t, err)
	assert.Equal(t, 7, userOnly)

	n, err := s.ReclaimGrants(ctx, dreamID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.ReclaimGrants(ctx, dreamID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	total, err = s.SumGrants(ctx, GrantFilter{DreamID: &dreamID})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	withReclaimed, err := s.ListGrants(ctx, GrantFilter{DreamID: &dreamID, IncludeReclaimed: true})
	require.NoError(t, err)
	assert.Len(t, withReclaimed, 2)
}

func TestMemory_CommentsAndFavorites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	d := &models.Dream{EventID: primitive.NewObjectID(), Slug: "x"}
	require.NoError(t, s.CreateDream(ctx, d))

	c := models.Comment{ID: primitive.NewObjectID(), Content: "hi"}
	updated, err := s.AddComment(ctx, d.ID, c)
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)

	// UpdateDream must not clobber comments.
	updated.Title = "renamed"
	updated.Comments = nil
	require.NoError(t, s.UpdateDream(ctx, updated))
	got, err := s.GetDream(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Len(t, got.Comments, 1)

	updated, err = s.DeleteComment(ctx, d.ID, c.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Comments)

	m := &models.Member{EventID: d.EventID, UserID: primitive.NewObjectID()}
	require.NoError(t, s.CreateMember(ctx, m))

	fav, err := s.SetFavorite(ctx, m.ID, d.ID, true)
	require.NoError(t, err)
	assert.True(t, fav.HasFavorite(d.ID))

	fav, err = s.SetFavorite(ctx, m.ID, d.ID, true)
	require.NoError(t, err)
	assert.Len(t, fav.Favorites, 1)

	fav, err = s.SetFavorite(ctx, m.ID, d.ID, false)
	require.NoError(t, err)
	assert.False(t, fav.HasFavorite(d.ID))
}

func TestMemory_RemoveCocreator(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	eventID, a, b := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	d := &models.Dream{EventID: eventID, Slug: "x", Cocreators: []primitive.ObjectID{a, b}}
	require.NoError(t, s.CreateDream(ctx, d))
	require.NoError(t, s.RemoveCocreator(ctx, eventID, a))

	got, err := s.GetDream(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{b}, got.Cocreators)
}

func TestMemory_WithGrantLockUnknownMember(t *testing.T) {
	s := NewMemory()
	called := false
	err := s.WithGrantLock(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.False(t, called)
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.GetEvent(ctx, primitive.NewObjectID())
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.True(t, apperrors.Is(s.DeleteGrant(ctx, primitive.NewObjectID()), apperrors.KindNotFound))
}
